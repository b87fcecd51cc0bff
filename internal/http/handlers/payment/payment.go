// Package payment HTTP-обработчики платёжного API страниц LIFF. Пользователь
// определяется по токену, который проверил middlewarectx.JWTMiddleware.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/codustry/gebwai/internal/http/middlewarectx"
	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/metrics"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/omise"
	"github.com/codustry/gebwai/internal/services/billing"
	"github.com/codustry/gebwai/internal/storage/repository"
)

// Users чтение пользователей.
type Users interface {
	Get(ctx context.Context, lineUserID string) (*models.User, error)
}

// Billing платёжные операции.
type Billing interface {
	EnsureCustomer(ctx context.Context, u *models.User, email string) (string, error)
	Subscribe(ctx context.Context, u *models.User) (string, error)
	Charge(ctx context.Context, u *models.User, token string, amount int64) (string, error)
	MakeOneTimePayment(ctx context.Context, u *models.User, amount int64, sourceToken, callbackURL string) (string, error)
	Unsubscribe(ctx context.Context, u *models.User) error
	AddCard(ctx context.Context, u *models.User, token string) (*omise.Card, error)
	ListCards(ctx context.Context, u *models.User) ([]omise.Card, error)
	RemoveCard(ctx context.Context, u *models.User, cardID string) error
	Charges(ctx context.Context, u *models.User) ([]*omise.Charge, error)
	NextOccurrences(ctx context.Context, u *models.User) ([]string, error)
	Status(u *models.User) billing.Status
}

// Handler обработчики /api/v1/payment.
type Handler struct {
	log       *slog.Logger
	users     Users
	billing   Billing
	publicKey string
	validate  *validator.Validate
}

// New создаёт обработчики. publicKey публичный ключ шлюза для форм оплаты.
func New(log *slog.Logger, users Users, billing Billing, publicKey string) *Handler {
	return &Handler{
		log:       log,
		users:     users,
		billing:   billing,
		publicKey: publicKey,
		validate:  validator.New(),
	}
}

// CustomerRequest тело POST /payment/customer.
type CustomerRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChargeRequest тело POST /payment/charge.
type ChargeRequest struct {
	Token  string `json:"token" validate:"required"`
	Amount int64  `json:"amount" validate:"required,oneof=5900 58800"`
}

// OneTimeRequest тело POST /payment/one-time.
type OneTimeRequest struct {
	// Source пустой, если платим картой клиента по умолчанию.
	Source      string `json:"source,omitempty" validate:"omitempty,startswith=src_"`
	Amount      int64  `json:"amount" validate:"required,min=2000"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

// CardRequest тело POST /payment/cards.
type CardRequest struct {
	Token string `json:"token" validate:"required,startswith=tokn_"`
}

// StatusResponse ответ GET /payment/status.
type StatusResponse struct {
	billing.Status
	PublicKey string `json:"public_key"`
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, response.Error(msg))
}

// currentUser загружает пользователя из токена. При ошибке ответ уже записан.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*models.User, bool) {
	lineUserID, ok := middlewarectx.LineUserIDFrom(r.Context())
	if !ok {
		log.Error("line user id not found in context")
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	u, err := h.users.Get(r.Context(), lineUserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		log.Warn("user not found", sl.LineUser(lineUserID))
		writeError(w, r, http.StatusNotFound, "user not found")
		return nil, false
	}
	if err != nil {
		log.Error("failed to get user", sl.LineUser(lineUserID), sl.Err(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return u, true
}

// decode читает и проверяет тело запроса. При ошибке ответ уже записан.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, r, http.StatusUnprocessableEntity, "invalid request")
			return false
		}
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return false
	}
	return true
}

// billingError переводит ошибку платёжной операции в HTTP-ответ.
func billingError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var apiErr *omise.APIError
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		writeError(w, r, http.StatusUnprocessableEntity, "charge amount does not match any plan")
	case errors.Is(err, models.ErrNotImplemented):
		writeError(w, r, http.StatusBadRequest, "unsupported payment token")
	case errors.Is(err, models.ErrNoCustomer):
		writeError(w, r, http.StatusConflict, "payment customer is not created")
	case errors.Is(err, models.ErrNoSchedule):
		writeError(w, r, http.StatusConflict, "no active subscription")
	case errors.Is(err, billing.ErrAlreadySubscribed):
		writeError(w, r, http.StatusConflict, "already subscribed")
	case errors.As(err, &apiErr):
		log.Error("payment gateway error", sl.Err(err))
		writeError(w, r, http.StatusBadGateway, apiErr.Message)
	default:
		log.Error("billing operation failed", sl.Err(err))
		writeError(w, r, http.StatusInternalServerError, "payment provider error")
	}
}

// Status godoc
// @Summary Состояние подписки
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=StatusResponse}
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /payment/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Status")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	render.JSON(w, r, response.StatusOKWithData(StatusResponse{
		Status:    h.billing.Status(u),
		PublicKey: h.publicKey,
	}))
}

// Customer godoc
// @Summary Создать клиента в платёжном шлюзе
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CustomerRequest true "Email клиента"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /payment/customer [post]
func (h *Handler) Customer(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Customer")
	var req CustomerRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	id, err := h.billing.EnsureCustomer(r.Context(), u, req.Email)
	metrics.BillingOperation("customer", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"customer_id": id}))
}

// Subscribe godoc
// @Summary Оформить ежемесячную подписку
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /payment/subscribe [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Subscribe")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	uri, err := h.billing.Subscribe(r.Context(), u)
	metrics.BillingOperation("subscribe", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"authorize_uri": uri}))
}

// Charge godoc
// @Summary Разовое списание по тарифу
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChargeRequest true "Токен и сумма"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /payment/charge [post]
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Charge")
	var req ChargeRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	uri, err := h.billing.Charge(r.Context(), u, req.Token, req.Amount)
	metrics.BillingOperation("charge", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"authorize_uri": uri}))
}

// OneTime godoc
// @Summary Разовая оплата через источник или карту по умолчанию
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OneTimeRequest true "Источник и сумма"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /payment/one-time [post]
func (h *Handler) OneTime(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.OneTime")
	var req OneTimeRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	uri, err := h.billing.MakeOneTimePayment(r.Context(), u, req.Amount, req.Source, req.CallbackURL)
	metrics.BillingOperation("one_time", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"authorize_uri": uri}))
}

// Unsubscribe godoc
// @Summary Отменить подписку
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /payment/subscription [delete]
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Unsubscribe")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	err := h.billing.Unsubscribe(r.Context(), u)
	metrics.BillingOperation("unsubscribe", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(h.billing.Status(u)))
}

// Charges godoc
// @Summary Ожидающие списания
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /payment/charges [get]
func (h *Handler) Charges(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Charges")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	charges, err := h.billing.Charges(r.Context(), u)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(charges))
}

// Schedule godoc
// @Summary Ближайшие даты списаний
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /payment/schedule [get]
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Schedule")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	dates, err := h.billing.NextOccurrences(r.Context(), u)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string][]string{"next_occurrences_on": dates}))
}

// CardView карта в ответе API.
type CardView struct {
	ID             string `json:"id"`
	Brand          string `json:"brand"`
	LastDigits     string `json:"last_digits"`
	ExpirationDate string `json:"expiration_date"`
}

func toCardView(c omise.Card) CardView {
	return CardView{
		ID:             c.ID,
		Brand:          c.Brand,
		LastDigits:     c.LastDigits,
		ExpirationDate: c.ExpirationDate(),
	}
}

// Cards godoc
// @Summary Карты пользователя
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]CardView}
// @Router /payment/cards [get]
func (h *Handler) Cards(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.Cards")
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	cards, err := h.billing.ListCards(r.Context(), u)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	views := make([]CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, toCardView(c))
	}
	render.JSON(w, r, response.StatusOKWithData(views))
}

// AddCard godoc
// @Summary Привязать карту
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CardRequest true "Токен карты"
// @Success 200 {object} response.Response{data=CardView}
// @Router /payment/cards [post]
func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.AddCard")
	var req CardRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	card, err := h.billing.AddCard(r.Context(), u, req.Token)
	metrics.BillingOperation("add_card", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(toCardView(*card)))
}

// RemoveCard godoc
// @Summary Отвязать карту
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Param cardID path string true "ID карты"
// @Success 200 {object} response.Response
// @Router /payment/cards/{cardID} [delete]
func (h *Handler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payment.RemoveCard")
	cardID := chi.URLParam(r, "cardID")
	if cardID == "" {
		writeError(w, r, http.StatusBadRequest, "card id is required")
		return
	}
	u, ok := h.currentUser(w, r, log)
	if !ok {
		return
	}
	err := h.billing.RemoveCard(r.Context(), u, cardID)
	metrics.BillingOperation("remove_card", err)
	if err != nil {
		billingError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"removed": cardID}))
}
