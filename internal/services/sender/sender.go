// Package sender доставляет пользователям уведомления из очереди через LINE push
// и собирает ссылки на страницу оплаты.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/line"
	"github.com/codustry/gebwai/internal/models"
)

// Pusher отправка push-сообщений LINE.
type Pusher interface {
	PushMessage(ctx context.Context, to string, messages ...line.TextMessage) error
}

// TokenMaker выпуск токенов для страниц LIFF.
type TokenMaker interface {
	GenerateToken(lineUserID string) (string, error)
}

// Service рассылка уведомлений.
type Service struct {
	pusher     Pusher
	tokens     TokenMaker
	paymentURL string
	log        *slog.Logger
}

// New создаёт сервис рассылки. paymentURL адрес страницы оплаты LIFF.
func New(log *slog.Logger, pusher Pusher, tokens TokenMaker, paymentURL string) *Service {
	return &Service{
		pusher:     pusher,
		tokens:     tokens,
		paymentURL: paymentURL,
		log:        log,
	}
}

// PaymentLink ссылка на страницу оплаты с токеном пользователя.
func (s *Service) PaymentLink(lineUserID string) (string, error) {
	const op = "sender.PaymentLink"

	token, err := s.tokens.GenerateToken(lineUserID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := url.Parse(s.paymentURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func trialExpiringText(msg models.TrialExpiringMessage, link string) string {
	end := msg.EndTrialOn.In(models.BillingLocation).Format("02/01/2006")
	name := msg.DisplayName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! Your Gebwai free trial ends on %s. Subscribe to keep collecting your files: %s",
		name, end, link)
}

// HandleTrialExpiring обрабатывает сообщение из очереди notifications.trial.
// Битые сообщения и отказы LINE с кодом 4xx не повторяются.
func (s *Service) HandleTrialExpiring(ctx context.Context, body []byte) error {
	const op = "sender.HandleTrialExpiring"
	log := s.log.With(sl.Op(op))

	var msg models.TrialExpiringMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Error("failed to unmarshal message body", sl.Err(err))
		return nil
	}
	if msg.LineUserID == "" {
		log.Error("message without line user id")
		return nil
	}
	log = log.With(sl.LineUser(msg.LineUserID))

	link, err := s.PaymentLink(msg.LineUserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.pusher.PushMessage(ctx, msg.LineUserID, line.NewTextMessage(trialExpiringText(msg, link)))
	var apiErr *line.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
		log.Warn("line rejected push message", sl.Err(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("trial expiring notification sent")
	return nil
}
