// Package health обработчик проверки готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
)

const checkTimeout = 2 * time.Second

// Checker проверяет одну зависимость.
type Checker interface {
	CheckDatabaseReady(ctx context.Context) error
}

// Handler GET /health.
type Handler struct {
	log *slog.Logger
	db  Checker
}

// New создаёт обработчик.
func New(log *slog.Logger, db Checker) *Handler {
	return &Handler{log: log, db: db}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.ErrorResponse
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if err := h.db.CheckDatabaseReady(ctx); err != nil {
		h.log.Error("database is not ready", sl.Op(op), sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("database is not ready"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"status": "ok"}))
}
