package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/dexlabs/simpledex/internal/app"
	"github.com/dexlabs/simpledex/internal/app/auth"
	"github.com/dexlabs/simpledex/internal/app/httpapi"
	"github.com/dexlabs/simpledex/internal/app/metrics"
	"github.com/dexlabs/simpledex/internal/app/storage/postgres"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// Application wires the marketplace and manages the HTTP server lifecycle.
type Application struct {
	cfg        *Config
	log        *logger.Logger
	core       *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs a fully wired application from the configuration
// at path (empty selects the default location or environment-only config).
func NewApplication(path string) (*Application, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	core, err := app.New(app.Config{
		Admin:          cfg.Market.Admin,
		BrokerAddress:  cfg.Market.BrokerAddress,
		EngineAddress:  cfg.Market.EngineAddress,
		FeeBeneficiary: cfg.Market.FeeBeneficiary,
		FeeBasisPoints: cfg.Market.FeeBasisPoints,
		EventBuffer:    cfg.Market.EventBuffer,
	}, stores, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	var authMgr *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		authMgr = auth.NewManager(cfg.Auth.JWTSecret, cfg.authUsers())
	}

	api, err := httpapi.New(core, authMgr, httpapi.Options{
		Tokens:    cfg.Auth.Tokens,
		AuditMax:  cfg.Auth.AuditMax,
		AuditFile: cfg.Auth.AuditFile,
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build http api: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api)

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      metrics.InstrumentHandler(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		core:       core,
		httpServer: srv,
		db:         db,
	}, nil
}

// Core exposes the wired marketplace services.
func (a *Application) Core() *app.Application { return a.core }

// Run starts the services and the HTTP server, blocking until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the services and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.core.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}

	_ = a.log.Sync()
	return nil
}

// buildStores selects the persistence layer. An empty database driver keeps
// the in-memory stores; "postgres" opens the database and applies migrations.
func buildStores(cfg *Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.Driver == "" {
		log.Warn("no database configured; using in-memory stores")
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	return app.Stores{
		Orders:    store,
		Ledger:    store,
		Operators: store,
		Events:    store,
	}, db, nil
}

func openDatabase(cfg DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
