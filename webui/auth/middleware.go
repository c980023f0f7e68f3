// Package auth guards the dashboard's write endpoints with an admin password.
// This file contains the HTTP Basic admin guard.
package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// AdminUser is the only user name the guard accepts.
const AdminUser = "admin"

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "dashboard admin"

// ErrNoCredentials is returned by NewAdminGuard when neither a password nor
// a hash is configured.
var ErrNoCredentials = errors.New("no admin password or hash configured")

// AdminGuard requires HTTP Basic credentials admin:<password> on the
// routes it wraps. Only the bcrypt hash is kept in memory.
//
// Usage:
//
//	guard, err := auth.NewAdminGuard(cfg.AdminPassword, cfg.AdminPasswordHash, logger)
//	mux.Handle("/simulate-update", guard.Middleware(handler))
type AdminGuard struct {
	passwordHash string
	logger       *zap.Logger
}

// NewAdminGuard creates a guard from a plaintext password or an existing
// bcrypt hash. The hash wins when both are set.
func NewAdminGuard(password, passwordHash string, logger *zap.Logger) (*AdminGuard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch {
	case passwordHash != "":
		if err := ValidateHashStrength(passwordHash); err != nil {
			return nil, err
		}
	case password != "":
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	default:
		return nil, ErrNoCredentials
	}

	return &AdminGuard{passwordHash: passwordHash, logger: logger}, nil
}

// Middleware rejects requests without valid admin credentials with 401.
func (g *AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || user != AdminUser || VerifyPassword(password, g.passwordHash) != nil {
			g.logger.Warn("admin authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Bool("credentials_present", ok),
			)
			w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
