// Package line обработчик вебхука LINE Messaging API.
package line

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/sl"
	linebot "github.com/codustry/gebwai/internal/line"
	"github.com/codustry/gebwai/internal/metrics"
	"github.com/codustry/gebwai/internal/models"
)

// subscribeCommand текст, в ответ на который бот присылает ссылку на оплату.
const subscribeCommand = "subscribe"

// Users операции над пользователями, которые вызывают события вебхука.
type Users interface {
	GetItDone(ctx context.Context, lineUserID string, createOrUnblock bool) (*models.User, error)
	EnsureUser(ctx context.Context, lineUserID, groupID string) (*models.User, error)
	Block(ctx context.Context, lineUserID string) error
	GetOrCreateSourceSettings(ctx context.Context, u *models.User, sourceType models.SourceType, sourceID string) (*models.SourceSettings, error)
	RecordGeb(ctx context.Context, u *models.User, sourceID string, fileType models.FileType) (bool, error)
}

// Profiles кеш профилей.
type Profiles interface {
	Forget(ctx context.Context, userID string) error
}

// Replier отправляет ответ на событие.
type Replier interface {
	ReplyMessage(ctx context.Context, replyToken string, messages ...linebot.TextMessage) error
}

// Links ссылка на страницу оплаты.
type Links interface {
	PaymentLink(lineUserID string) (string, error)
}

// Handler POST /line/callback.
type Handler struct {
	log           *slog.Logger
	channelSecret string
	users         Users
	profiles      Profiles
	replier       Replier
	links         Links
}

// New создаёт обработчик вебхука.
func New(log *slog.Logger, channelSecret string, users Users, profiles Profiles, replier Replier, links Links) *Handler {
	return &Handler{
		log:           log,
		channelSecret: channelSecret,
		users:         users,
		profiles:      profiles,
		replier:       replier,
		links:         links,
	}
}

// ServeHTTP godoc
// @Summary Вебхук LINE
// @Description Проверяет X-Line-Signature и обрабатывает события follow, unfollow, message и join.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Line-Signature header string true "HMAC-SHA256 тела в base64"
// @Success 200 {object} map[string]string
// @Failure 401 {object} response.ErrorResponse
// @Router /line/callback [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.line.callback"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req, err := linebot.ParseRequest(h.channelSecret, r)
	if errors.Is(err, linebot.ErrInvalidSignature) {
		log.Warn("invalid signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}
	if err != nil {
		log.Error("failed to parse callback", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	for _, event := range req.Events {
		metrics.LineEvent(event.Type)
		if err := h.handleEvent(r.Context(), log, event); err != nil {
			// Ошибка одного события не мешает обработке остальных.
			log.Error("failed to handle event",
				slog.String("type", event.Type),
				sl.LineUser(event.Source.UserID),
				sl.Err(err))
		}
	}

	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) handleEvent(ctx context.Context, log *slog.Logger, event linebot.Event) error {
	userID := event.Source.UserID

	switch event.Type {
	case linebot.EventFollow:
		if userID == "" {
			return nil
		}
		_, err := h.users.GetItDone(ctx, userID, true)
		return err
	case linebot.EventUnfollow:
		if userID == "" {
			return nil
		}
		if err := h.users.Block(ctx, userID); err != nil {
			return err
		}
		if err := h.profiles.Forget(ctx, userID); err != nil {
			log.Warn("failed to forget profile", sl.LineUser(userID), sl.Err(err))
		}
		return nil
	case linebot.EventMessage:
		return h.handleMessage(ctx, event)
	case linebot.EventJoin:
		log.Info("bot joined source",
			slog.String("source_type", event.Source.Type),
			slog.String("source_id", event.Source.ID()))
		return nil
	default:
		log.Debug("event skipped", slog.String("type", event.Type))
		return nil
	}
}

func (h *Handler) handleMessage(ctx context.Context, event linebot.Event) error {
	userID := event.Source.UserID
	if userID == "" || event.Message == nil {
		return nil
	}

	u, err := h.users.EnsureUser(ctx, userID, event.Source.GroupID)
	if err != nil {
		return err
	}

	sourceType := models.SourceType(event.Source.Type)
	sourceID := event.Source.ID()
	if _, err := h.users.GetOrCreateSourceSettings(ctx, u, sourceType, sourceID); err != nil {
		return err
	}

	if fileType, ok := fileTypeOf(event.Message); ok {
		if _, err := h.users.RecordGeb(ctx, u, sourceID, fileType); err != nil {
			return err
		}
	}

	if !event.IsText() || event.ReplyToken == "" {
		return nil
	}
	return h.reply(ctx, userID, event)
}

func (h *Handler) reply(ctx context.Context, userID string, event linebot.Event) error {
	text := event.Message.Text
	if strings.EqualFold(strings.TrimSpace(text), subscribeCommand) {
		link, err := h.links.PaymentLink(userID)
		if err != nil {
			return err
		}
		text = "Subscribe to Gebwai: " + link
	}
	return h.replier.ReplyMessage(ctx, event.ReplyToken, linebot.NewTextMessage(text))
}

// fileTypeOf тип собранного сообщения. Стикеры и прочие типы не учитываются.
func fileTypeOf(m *linebot.Message) (models.FileType, bool) {
	switch m.Type {
	case linebot.MessageText:
		if containsLink(m.Text) {
			return models.FileTypeLink, true
		}
		return models.FileTypeChat, true
	case linebot.MessageImage:
		return models.FileTypeImage, true
	case linebot.MessageVideo:
		return models.FileTypeVideo, true
	case linebot.MessageAudio:
		return models.FileTypeAudio, true
	case linebot.MessageFile:
		return models.FileTypeFile, true
	default:
		return "", false
	}
}

func containsLink(text string) bool {
	for _, f := range strings.Fields(text) {
		lower := strings.ToLower(f)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return true
		}
	}
	return false
}
