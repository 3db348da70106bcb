package request

import (
	"context"
	"net/http"
	"time"
)

// WithTimeout bounds each request with context.WithTimeout. The deadline is
// only effective because the layers below suspend on ctx.Done(); the
// middleware itself does not interrupt anything.
func WithTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
