package muxhandlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// IdempotencyKeyHeader is the header clients send to make POSTs retryable.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyWarningConfig configures the Idempotency Warning middleware.
type IdempotencyWarningConfig struct {
	// Logger receives the warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// IdempotencyWarningMiddleware returns a middleware that logs a warning for
// every POST without an Idempotency-Key header. The request is never
// rejected; the mock only nudges clients toward sending the key.
func IdempotencyWarningMiddleware(cfg IdempotencyWarningConfig) mux.MiddlewareFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.Header.Get(IdempotencyKeyHeader) == "" {
				logger.WarnContext(r.Context(), "POST missing Idempotency-Key header",
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}
