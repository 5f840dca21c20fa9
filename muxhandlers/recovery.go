package muxhandlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/apierror"
)

// RecoveryConfig configures the Recovery middleware behaviour.
type RecoveryConfig struct {
	// Logger receives one error record per recovered panic. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// PrintStack adds the goroutine stack to the log record.
	PrintStack bool
}

// RecoveryMiddleware returns a middleware that recovers from panics in
// downstream handlers, logs them and answers 500 with an internal_error
// JSON body. http.ErrAbortHandler is re-raised so net/http can abort the
// connection.
func RecoveryMiddleware(cfg RecoveryConfig) mux.MiddlewareFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				attrs := []any{
					"panic", fmt.Sprint(rec),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				}
				if cfg.PrintStack {
					attrs = append(attrs, "stack", string(debug.Stack()))
				}
				logger.Error("panic recovered", attrs...)

				apierror.Write(w, apierror.Internal(fmt.Errorf("panic: %v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
