package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codustry/gebwai/internal/http/middlewarectx"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/omise"
	"github.com/codustry/gebwai/internal/services/billing"
	"github.com/codustry/gebwai/internal/storage/repository"
)

type UsersMock struct{ mock.Mock }

func (m *UsersMock) Get(ctx context.Context, lineUserID string) (*models.User, error) {
	args := m.Called(ctx, lineUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type BillingMock struct{ mock.Mock }

func (m *BillingMock) EnsureCustomer(ctx context.Context, u *models.User, email string) (string, error) {
	args := m.Called(ctx, u, email)
	return args.String(0), args.Error(1)
}

func (m *BillingMock) Subscribe(ctx context.Context, u *models.User) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *BillingMock) Charge(ctx context.Context, u *models.User, token string, amount int64) (string, error) {
	args := m.Called(ctx, u, token, amount)
	return args.String(0), args.Error(1)
}

func (m *BillingMock) MakeOneTimePayment(ctx context.Context, u *models.User, amount int64, sourceToken, callbackURL string) (string, error) {
	args := m.Called(ctx, u, amount, sourceToken, callbackURL)
	return args.String(0), args.Error(1)
}

func (m *BillingMock) Unsubscribe(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *BillingMock) AddCard(ctx context.Context, u *models.User, token string) (*omise.Card, error) {
	args := m.Called(ctx, u, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*omise.Card), args.Error(1)
}

func (m *BillingMock) ListCards(ctx context.Context, u *models.User) ([]omise.Card, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]omise.Card), args.Error(1)
}

func (m *BillingMock) RemoveCard(ctx context.Context, u *models.User, cardID string) error {
	return m.Called(ctx, u, cardID).Error(0)
}

func (m *BillingMock) Charges(ctx context.Context, u *models.User) ([]*omise.Charge, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*omise.Charge), args.Error(1)
}

func (m *BillingMock) NextOccurrences(ctx context.Context, u *models.User) ([]string, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *BillingMock) Status(u *models.User) billing.Status {
	return m.Called(u).Get(0).(billing.Status)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var alice = &models.User{LineUserID: "U1", Tier: models.TierSilver}

// newRouter собирает маршруты как в приложении, но подставляет пользователя без JWT.
func newRouter(h *Handler, lineUserID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if lineUserID != "" {
				req = req.WithContext(middlewarectx.WithLineUserID(req.Context(), lineUserID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/payment/status", h.Status)
	r.Post("/payment/customer", h.Customer)
	r.Post("/payment/subscribe", h.Subscribe)
	r.Post("/payment/charge", h.Charge)
	r.Post("/payment/one-time", h.OneTime)
	r.Delete("/payment/subscription", h.Unsubscribe)
	r.Get("/payment/charges", h.Charges)
	r.Get("/payment/schedule", h.Schedule)
	r.Get("/payment/cards", h.Cards)
	r.Post("/payment/cards", h.AddCard)
	r.Delete("/payment/cards/{cardID}", h.RemoveCard)
	return r
}

func foundAlice(u *UsersMock) {
	u.On("Get", mock.Anything, "U1").Return(alice, nil).Once()
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		url            string
		body           any
		lineUserID     string
		setupMocks     func(u *UsersMock, b *BillingMock)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no user in context",
			method:         http.MethodGet,
			url:            "/payment/status",
			setupMocks:     func(_ *UsersMock, _ *BillingMock) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:       "unknown user",
			method:     http.MethodGet,
			url:        "/payment/status",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, _ *BillingMock) {
				u.On("Get", mock.Anything, "U1").
					Return(nil, fmt.Errorf("user.Get: %w", repository.ErrUserNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"user not found"`,
		},
		{
			name:       "users storage error",
			method:     http.MethodGet,
			url:        "/payment/status",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, _ *BillingMock) {
				u.On("Get", mock.Anything, "U1").Return(nil, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:       "status",
			method:     http.MethodGet,
			url:        "/payment/status",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Status", alice).Return(billing.Status{State: models.StateTrial, Tier: models.TierSilver, IsOnTrial: true}).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"state":"trial"`,
		},
		{
			name:       "customer created",
			method:     http.MethodPost,
			url:        "/payment/customer",
			body:       CustomerRequest{Email: "alice@example.com"},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("EnsureCustomer", mock.Anything, alice, "alice@example.com").Return("cust_1", nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"customer_id":"cust_1"`,
		},
		{
			name:           "customer invalid email",
			method:         http.MethodPost,
			url:            "/payment/customer",
			body:           CustomerRequest{Email: "nope"},
			lineUserID:     "U1",
			setupMocks:     func(_ *UsersMock, _ *BillingMock) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Email must be a valid email`,
		},
		{
			name:           "invalid json",
			method:         http.MethodPost,
			url:            "/payment/charge",
			body:           "not a json",
			lineUserID:     "U1",
			setupMocks:     func(_ *UsersMock, _ *BillingMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:       "subscribe",
			method:     http.MethodPost,
			url:        "/payment/subscribe",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Subscribe", mock.Anything, alice).Return("https://pay/1", nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"authorize_uri":"https://pay/1"`,
		},
		{
			name:       "subscribe without customer",
			method:     http.MethodPost,
			url:        "/payment/subscribe",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Subscribe", mock.Anything, alice).
					Return("", fmt.Errorf("billing.Subscribe: %w", models.ErrNoCustomer)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"payment customer is not created"`,
		},
		{
			name:           "charge amount is not a plan",
			method:         http.MethodPost,
			url:            "/payment/charge",
			body:           ChargeRequest{Token: "tokn_1", Amount: 3000},
			lineUserID:     "U1",
			setupMocks:     func(_ *UsersMock, _ *BillingMock) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Amount must be one of: 5900 58800`,
		},
		{
			name:       "charge with unsupported token",
			method:     http.MethodPost,
			url:        "/payment/charge",
			body:       ChargeRequest{Token: "card_1", Amount: 5900},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Charge", mock.Anything, alice, "card_1", int64(5900)).
					Return("", fmt.Errorf("billing.Charge: %w", models.ErrNotImplemented)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"unsupported payment token"`,
		},
		{
			name:       "charge gateway error",
			method:     http.MethodPost,
			url:        "/payment/charge",
			body:       ChargeRequest{Token: "src_1", Amount: 58800},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Charge", mock.Anything, alice, "src_1", int64(58800)).
					Return("", fmt.Errorf("billing.Charge: %w", &omise.APIError{StatusCode: 400, Code: "invalid_card", Message: "card was declined"})).Once()
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"card was declined"`,
		},
		{
			name:       "one-time payment",
			method:     http.MethodPost,
			url:        "/payment/one-time",
			body:       OneTimeRequest{Source: "src_1", Amount: 2500},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("MakeOneTimePayment", mock.Anything, alice, int64(2500), "src_1", "").Return("https://pay/2", nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"authorize_uri":"https://pay/2"`,
		},
		{
			name:           "one-time payment rejects card token",
			method:         http.MethodPost,
			url:            "/payment/one-time",
			body:           OneTimeRequest{Source: "tokn_1", Amount: 2500},
			lineUserID:     "U1",
			setupMocks:     func(_ *UsersMock, _ *BillingMock) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Source must start with src_`,
		},
		{
			name:       "one-time payment with default card",
			method:     http.MethodPost,
			url:        "/payment/one-time",
			body:       OneTimeRequest{Amount: 2500},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("MakeOneTimePayment", mock.Anything, alice, int64(2500), "", "").Return("", nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"authorize_uri":""`,
		},
		{
			name:       "one-time payment with default card needs customer",
			method:     http.MethodPost,
			url:        "/payment/one-time",
			body:       OneTimeRequest{Amount: 2500},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("MakeOneTimePayment", mock.Anything, alice, int64(2500), "", "").
					Return("", fmt.Errorf("billing.MakeOneTimePayment: %w", models.ErrNoCustomer)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"payment customer is not created"`,
		},
		{
			name:       "unsubscribe without schedule",
			method:     http.MethodDelete,
			url:        "/payment/subscription",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Unsubscribe", mock.Anything, alice).
					Return(fmt.Errorf("billing.Unsubscribe: %w", models.ErrNoSchedule)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"no active subscription"`,
		},
		{
			name:       "unsubscribe",
			method:     http.MethodDelete,
			url:        "/payment/subscription",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Unsubscribe", mock.Anything, alice).Return(nil).Once()
				b.On("Status", alice).Return(billing.Status{State: models.StateUnsubscribed}).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"state":"unsubscribed"`,
		},
		{
			name:       "charges",
			method:     http.MethodGet,
			url:        "/payment/charges",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("Charges", mock.Anything, alice).Return([]*omise.Charge{{ID: "chrg_1", Status: "pending"}}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"id":"chrg_1"`,
		},
		{
			name:       "schedule",
			method:     http.MethodGet,
			url:        "/payment/schedule",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("NextOccurrences", mock.Anything, alice).Return([]string{"2024-04-10"}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"next_occurrences_on":["2024-04-10"]`,
		},
		{
			name:       "cards",
			method:     http.MethodGet,
			url:        "/payment/cards",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("ListCards", mock.Anything, alice).Return([]omise.Card{
					{ID: "card_1", Brand: "Visa", LastDigits: "4242", ExpirationMonth: 4, ExpirationYear: 2030},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"expiration_date":"EXP 04/2030"`,
		},
		{
			name:       "add card",
			method:     http.MethodPost,
			url:        "/payment/cards",
			body:       CardRequest{Token: "tokn_1"},
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("AddCard", mock.Anything, alice, "tokn_1").Return(&omise.Card{ID: "card_2", LastDigits: "1111"}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"last_digits":"1111"`,
		},
		{
			name:       "remove card",
			method:     http.MethodDelete,
			url:        "/payment/cards/card_1",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("RemoveCard", mock.Anything, alice, "card_1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"removed":"card_1"`,
		},
		{
			name:       "unexpected billing error",
			method:     http.MethodDelete,
			url:        "/payment/cards/card_1",
			lineUserID: "U1",
			setupMocks: func(u *UsersMock, b *BillingMock) {
				foundAlice(u)
				b.On("RemoveCard", mock.Anything, alice, "card_1").Return(errors.New("timeout")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"payment provider error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, b := new(UsersMock), new(BillingMock)
			tt.setupMocks(u, b)

			var body []byte
			if s, ok := tt.body.(string); ok {
				body = []byte(s)
			} else if tt.body != nil {
				var err error
				body, err = json.Marshal(tt.body)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(tt.method, tt.url, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			newRouter(New(newNoopLogger(), u, b, "pkey_test"), tt.lineUserID).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, rec.Body.String(), tt.expectedBody)
			}
			u.AssertExpectations(t)
			b.AssertExpectations(t)
		})
	}
}

func TestHandler_StatusIncludesPublicKey(t *testing.T) {
	u, b := new(UsersMock), new(BillingMock)
	foundAlice(u)
	b.On("Status", alice).Return(billing.Status{State: models.StateNew}).Once()

	req := httptest.NewRequest(http.MethodGet, "/payment/status", nil)
	rec := httptest.NewRecorder()
	newRouter(New(newNoopLogger(), u, b, "pkey_test"), "U1").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string         `json:"status"`
		Data   StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "pkey_test", resp.Data.PublicKey)
	assert.Equal(t, models.StateNew, resp.Data.State)
}
