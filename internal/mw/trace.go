package mw

import (
	"net/http"

	"github.com/gatehouse-io/authz-go/internal/trace"
)

// Trace assigns each request a correlation id, honoring one supplied by the
// caller, and echoes it on the response before the handler runs.
func Trace() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(trace.Header)
			if id == "" {
				id = trace.NewID()
			}
			w.Header().Set(trace.Header, id)
			w.Header().Set("X-Request-ID", id)

			next.ServeHTTP(w, r.WithContext(trace.With(r.Context(), id)))
		})
	}
}
