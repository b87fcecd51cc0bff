// Package omise обработчик вебхуков платёжного шлюза.
package omise

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/metrics"
	omiseapi "github.com/codustry/gebwai/internal/omise"
)

const maxBodySize = 1 << 20

// Service обработка завершённых списаний.
type Service interface {
	HandleChargeComplete(ctx context.Context, eventID string) error
}

// Handler POST /omise/webhook.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

type payload struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	Key    string `json:"key"`
}

// ServeHTTP godoc
// @Summary Вебхук платёжного шлюза
// @Description Данные события перечитываются из шлюза по id, тело используется только для id и key.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /omise/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.omise.webhook"
	log := h.log.With(sl.Op(op))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.ID == "" {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log = log.With(slog.String("event_id", p.ID), slog.String("key", p.Key))

	if p.Key != omiseapi.EventChargeComplete {
		log.Info("ignored webhook event")
		render.JSON(w, r, map[string]string{"status": "ok"})
		return
	}

	err = h.service.HandleChargeComplete(r.Context(), p.ID)
	metrics.BillingOperation("charge_complete", err)
	if err != nil {
		// Шлюз повторит доставку при ответе не 2xx.
		log.Error("failed to process webhook event", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process event"))
		return
	}

	log.Info("webhook processed successfully")
	render.JSON(w, r, map[string]string{"status": "ok"})
}
