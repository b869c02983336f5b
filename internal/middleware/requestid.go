package middleware

import (
	"context"
	"net/http"

	"pricelens-gateway/pkg/uid"
)

// RequestID tags each request with an id, echoes it in the response and
// stores it in the context, from where the upstream client forwards it to
// the backend. A client-supplied X-Request-ID survives only in canonical
// UUID form.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(uid.Header)
		if !uid.IsValid(id) {
			id = uid.New()
		}
		w.Header().Set(uid.Header, id)
		next.ServeHTTP(w, r.WithContext(uid.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return uid.RequestID(ctx)
}
