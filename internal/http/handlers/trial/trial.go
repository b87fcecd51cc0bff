// Package trial обработчик запуска пробного периода.
package trial

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/middlewarectx"
	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/storage/repository"
)

// Service запуск пробного периода.
type Service interface {
	StartTrial(ctx context.Context, lineUserID string) (*models.User, bool, error)
}

// Handler POST /api/v1/trial.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Response ответ на запуск пробного периода.
type Response struct {
	Started    bool        `json:"started"`
	Tier       models.Tier `json:"tier"`
	EndTrialOn string      `json:"end_trial_on"`
}

// ServeHTTP godoc
// @Summary Запустить пробный период
// @Description Повторный вызов ничего не меняет и возвращает started=false.
// @Tags Trial
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=Response}
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.start"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	lineUserID, ok := middlewarectx.LineUserIDFrom(r.Context())
	if !ok {
		log.Error("line user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	u, started, err := h.service.StartTrial(r.Context(), lineUserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}
	if err != nil {
		log.Error("failed to start trial", sl.LineUser(lineUserID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start trial"))
		return
	}

	resp := Response{Started: started, Tier: u.Tier}
	if end := u.Payment.EndTrialOn(); end != nil {
		resp.EndTrialOn = end.Format(time.RFC3339)
	}
	render.JSON(w, r, response.StatusOKWithData(resp))
}
