// Package principal carries the authenticated caller through a request.
// The auth middleware constructs it once per request; every consumer receives
// it through the request context instead of a package-level instance.
package principal

import "context"

type contextKey struct{}

// Principal is the authenticated user behind a request.
type Principal struct {
	UserID       string
	Email        string
	DisplayName  string
	IsAdmin      bool
	SessionToken string
	// AccessToken is the auth service token forwarded to the backend API.
	AccessToken string
}

// IsLoggedIn reports whether p identifies a user.
func (p *Principal) IsLoggedIn() bool {
	return p != nil && p.UserID != ""
}

// WithPrincipal returns a child context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored in ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// AccessToken returns the backend access token for ctx, or "".
func AccessToken(ctx context.Context) string {
	if p := FromContext(ctx); p != nil {
		return p.AccessToken
	}
	return ""
}
