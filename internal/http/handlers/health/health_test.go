package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckDatabaseReady(ctx context.Context) error { return f(ctx) }

func TestHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		checker        checkerFunc
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "ready",
			checker:        func(_ context.Context) error { return nil },
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"status":"ok"}}`,
		},
		{
			name:           "database down",
			checker:        func(_ context.Context) error { return errors.New("connection refused") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"Error","error":"database is not ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(log, tt.checker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}
