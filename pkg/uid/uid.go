// Package uid generates the identifiers used for requests, mutations and
// idempotency keys.
package uid

import (
	"context"

	"github.com/google/uuid"
)

// New returns a random (v4) identifier.
func New() string {
	return uuid.NewString()
}

// NewOrdered returns a time-ordered (v7) identifier. Review mutation ids use
// it so audit rows sort by creation. Falls back to v4 if the clock source
// fails.
func NewOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return New()
	}
	return id.String()
}

// IsValid reports whether id is a UUID in canonical 36-character form.
// Braced and urn: forms are rejected since the value is echoed in headers.
func IsValid(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Header is the HTTP header that carries a request id between the browser,
// the gateway and the backend.
const Header = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns a child context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
