package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/listing-search/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation and trace IDs in the
// request context. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.NewContext(r.Context(), logger.WithContext(r.Context(), base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
