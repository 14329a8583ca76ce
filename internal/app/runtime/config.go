// Package runtime loads configuration and runs the marketplace as an HTTP
// service.
package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dexlabs/simpledex/internal/app/auth"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig controls persistence. An empty driver selects the in-memory
// store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// MarketConfig carries the deployment identities and fee settings.
type MarketConfig struct {
	Admin          string `yaml:"admin"`
	BrokerAddress  string `yaml:"broker_address"`
	EngineAddress  string `yaml:"engine_address"`
	FeeBeneficiary string `yaml:"fee_beneficiary"`
	FeeBasisPoints uint32 `yaml:"fee_basis_points"`
	EventBuffer    int    `yaml:"event_buffer"`
}

// UserConfig is a configured API user.
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Address  string `yaml:"address"`
}

// AuthConfig controls API authentication and auditing.
type AuthConfig struct {
	Tokens    []string     `yaml:"tokens"`
	JWTSecret string       `yaml:"jwt_secret"`
	Users     []UserConfig `yaml:"users"`
	AuditMax  int          `yaml:"audit_max"`
	AuditFile string       `yaml:"audit_file"`
}

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Market   MarketConfig         `yaml:"market"`
	Auth     AuthConfig           `yaml:"auth"`
}

// DefaultConfigPath is consulted when no explicit path is given.
const DefaultConfigPath = "config/simpledex.yaml"

// Load reads configuration from a YAML file, applies environment overrides and
// validates the result. A missing file is not an error when no explicit path
// was requested; the environment alone can configure the service.
func Load(path string) (*Config, error) {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Fall through to environment configuration.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Market.Admin == "" {
		return nil, fmt.Errorf("market admin address is required (market.admin or SIMPLEDEX_ADMIN)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SIMPLEDEX_HTTP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SIMPLEDEX_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIMPLEDEX_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SIMPLEDEX_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SIMPLEDEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SIMPLEDEX_ADMIN"); v != "" {
		cfg.Market.Admin = v
	}
	if v := os.Getenv("SIMPLEDEX_FEE_BENEFICIARY"); v != "" {
		cfg.Market.FeeBeneficiary = v
	}
	if v := os.Getenv("SIMPLEDEX_FEE_BASIS_POINTS"); v != "" {
		if bp, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Market.FeeBasisPoints = uint32(bp)
		}
	}
	if v := os.Getenv("SIMPLEDEX_API_TOKENS"); v != "" {
		cfg.Auth.Tokens = splitNonEmpty(v)
	}
	if v := os.Getenv("SIMPLEDEX_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// authUsers converts configured users to the auth package representation.
func (c *Config) authUsers() []auth.User {
	users := make([]auth.User, 0, len(c.Auth.Users))
	for _, u := range c.Auth.Users {
		users = append(users, auth.User{
			Username: u.Username,
			Password: u.Password,
			Role:     u.Role,
			Address:  u.Address,
		})
	}
	return users
}
