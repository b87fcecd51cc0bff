// Package settings обработчик изменения настроек источника.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/middlewarectx"
	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/services/user"
	"github.com/codustry/gebwai/internal/storage/repository"
)

// Service изменение настроек источника.
type Service interface {
	UpdateSourceSettings(ctx context.Context, lineUserID, sourceID string, patch user.SourceSettingsPatch) (*models.SourceSettings, error)
}

// Handler PUT /api/v1/settings/sources/{sourceID}.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Изменить настройки источника
// @Description Меняет только переданные поля.
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sourceID path string true "ID чата или группы"
// @Param request body user.SourceSettingsPatch true "Изменения"
// @Success 200 {object} response.Response{data=models.SourceSettings}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /settings/sources/{sourceID} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.settings.source"
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

	sourceID := chi.URLParam(r, "sourceID")
	if sourceID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("source id is required"))
		return
	}

	var patch user.SourceSettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	settings, err := h.service.UpdateSourceSettings(r.Context(), lineUserID, sourceID, patch)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, user.ErrSourceNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("source not found"))
		return
	case err != nil:
		log.Error("failed to update source settings", sl.LineUser(lineUserID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not update settings"))
		return
	}

	log.Info("source settings updated", sl.LineUser(lineUserID), slog.String("source_id", sourceID))
	render.JSON(w, r, response.StatusOKWithData(settings))
}
