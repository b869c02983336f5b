package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/apierror"

	"go.uber.org/zap"
)

// SessionTokenHeader carries the gateway session token as an alternative to
// the Authorization header.
const SessionTokenHeader = "X-Session-Token"

// SessionValidator resolves session tokens.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Session, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Sessions SessionValidator
	// PublicPaths are served without a session.
	PublicPaths []string
	Logger      *zap.Logger
}

// NewAuthMiddleware creates an authentication middleware with injected
// dependencies. The resolved principal travels in the request context.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := SessionToken(r)
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Sign in and send the session token."))
				return
			}

			sess, err := cfg.Sessions.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrInvalidSession) {
					logger.Error("session lookup failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
					writeError(w, apierror.ServiceUnavailable("Session store unavailable"))
					return
				}
				writeError(w, apierror.Unauthorized("Invalid or expired session"))
				return
			}

			p := &principal.Principal{
				UserID:       sess.UserID,
				Email:        sess.Email,
				DisplayName:  sess.DisplayName,
				IsAdmin:      sess.IsAdmin,
				SessionToken: token,
				AccessToken:  sess.AccessToken,
			}
			next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin rejects callers without admin rights.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principal.FromContext(r.Context())
		if !p.IsLoggedIn() {
			writeError(w, apierror.Unauthorized(""))
			return
		}
		if !p.IsAdmin {
			writeError(w, apierror.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionToken extracts the gateway session token from r.
func SessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionTokenHeader)); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
