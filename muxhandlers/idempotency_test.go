package muxhandlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyWarningMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		key      string
		wantWarn bool
	}{
		{name: "post without key", method: http.MethodPost, wantWarn: true},
		{name: "post with key", method: http.MethodPost, key: "abc"},
		{name: "get without key", method: http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			called := false
			h := IdempotencyWarningMiddleware(IdempotencyWarningConfig{Logger: logger})(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					called = true
					w.WriteHeader(http.StatusCreated)
				}))

			req := httptest.NewRequest(tt.method, "/v1/scripts", nil)
			if tt.key != "" {
				req.Header.Set(IdempotencyKeyHeader, tt.key)
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.True(t, called)
			assert.Equal(t, http.StatusCreated, w.Code)

			if tt.wantWarn {
				assert.Contains(t, logs.String(), "level=WARN")
				assert.Contains(t, logs.String(), "Idempotency-Key")
				assert.Contains(t, logs.String(), "path=/v1/scripts")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}
