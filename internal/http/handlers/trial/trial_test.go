package trial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/codustry/gebwai/internal/http/middlewarectx"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/storage/repository"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) StartTrial(ctx context.Context, lineUserID string) (*models.User, bool, error) {
	args := m.Called(ctx, lineUserID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.User), args.Bool(1), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHandler(t *testing.T) {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	trialUser := models.NewUser(models.LINEUser{UserID: "U1"}, start)
	trialUser.StartTrial(start)

	tests := []struct {
		name           string
		lineUserID     string
		setupMocks     func(m *ServiceMock)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "unauthorized",
			setupMocks:     func(_ *ServiceMock) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:       "started",
			lineUserID: "U1",
			setupMocks: func(m *ServiceMock) {
				m.On("StartTrial", mock.Anything, "U1").Return(trialUser, true, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"started":true,"tier":"silver","end_trial_on":"2024-04-09T12:00:00Z"}}`,
		},
		{
			name:       "already started",
			lineUserID: "U1",
			setupMocks: func(m *ServiceMock) {
				m.On("StartTrial", mock.Anything, "U1").Return(trialUser, false, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"started":false`,
		},
		{
			name:       "unknown user",
			lineUserID: "U1",
			setupMocks: func(m *ServiceMock) {
				m.On("StartTrial", mock.Anything, "U1").
					Return(nil, false, fmt.Errorf("user.StartTrial: %w", repository.ErrUserNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:       "service error",
			lineUserID: "U1",
			setupMocks: func(m *ServiceMock) {
				m.On("StartTrial", mock.Anything, "U1").Return(nil, false, errors.New("db error")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"could not start trial"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/trial", nil)
			if tt.lineUserID != "" {
				req = req.WithContext(middlewarectx.WithLineUserID(req.Context(), tt.lineUserID))
			}
			rec := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, rec.Body.String(), tt.expectedBody)
			}
			svc.AssertExpectations(t)
		})
	}
}
