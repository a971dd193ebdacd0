package applog

import (
	"net/http"

	"github.com/google/uuid"
)

// WithRequestID stamps every request with a stable X-Request-ID, used by
// the proxy's structured log lines and Loki labels to correlate a single
// client request across its selection/dispatch/response log entries. An
// existing header value is preserved so a caller's own tracing ID survives
// the hop.
//
// Generates a UUID rather than a counter-plus-timestamp scheme.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			r.Header.Set("X-Request-ID", uuid.NewString())
		}
		next.ServeHTTP(w, r)
	})
}
