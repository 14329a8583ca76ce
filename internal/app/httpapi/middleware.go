package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dexlabs/simpledex/internal/app/auth"
	"github.com/dexlabs/simpledex/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "auth-claims"

var (
	errMissingBearer = errors.New("missing bearer token")
	errInvalidBearer = errors.New("invalid bearer token")
)

// claimsFromContext returns the JWT claims attached by the auth middleware,
// or nil for anonymous and static-token requests.
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// openPaths are reachable without credentials.
var openPaths = map[string]bool{
	"/healthz":    true,
	"/metrics":    true,
	"/auth/login": true,
}

// wrapWithAuth enforces bearer authentication on every route except the open
// paths. A request authenticates with either a configured static token or a
// JWT issued by the auth manager. With no tokens and no manager configured
// authentication is disabled.
func wrapWithAuth(next http.Handler, tokens []string, authMgr *auth.Manager, audit *auditLog, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	staticTokens := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if t != "" {
			staticTokens[t] = true
		}
	}
	disabled := len(staticTokens) == 0 && authMgr == nil

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disabled || openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(raw, "Bearer ") {
			audit.record(r, "", false)
			writeError(w, http.StatusUnauthorized, errMissingBearer)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

		if staticTokens[token] {
			audit.record(r, "token", true)
			next.ServeHTTP(w, r)
			return
		}

		if authMgr != nil {
			claims, err := authMgr.Verify(token)
			if err == nil {
				audit.record(r, claims.Subject, true)
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
				return
			}
		}

		audit.record(r, "", false)
		log.WithField("path", r.URL.Path).Warn("rejected unauthenticated request")
		writeError(w, http.StatusUnauthorized, errInvalidBearer)
	})
}
