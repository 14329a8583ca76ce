// Package auth provides JWT-based authentication for the administrative API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is reported for unknown users or wrong passwords.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrInvalidToken is reported for malformed, expired or mis-signed tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// User is a configured API user. Address is the on-ledger identity the user
// acts as; for the administrator it must match the deployment's admin address.
type User struct {
	Username string
	Password string
	Role     string
	Address  string
}

// Claims are the JWT claims issued at login.
type Claims struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Manager issues and verifies tokens for the configured users.
type Manager struct {
	secret []byte
	users  map[string]User
	ttl    time.Duration
}

// NewManager builds a manager with an HMAC signing secret and a static user
// set.
func NewManager(secret string, users []User) *Manager {
	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	return &Manager{secret: []byte(secret), users: byName, ttl: 24 * time.Hour}
}

// Login verifies credentials and issues a signed token.
func (m *Manager) Login(username, password string) (string, error) {
	user, ok := m.users[username]
	if !ok || user.Password != password {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Role:    user.Role,
		Address: user.Address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
