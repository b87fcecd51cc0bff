// Package scheduler фоновые задачи: уведомления об окончании пробного периода
// и ежемесячный сброс статистики.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/rabbitmq"
)

// TrialWindow за сколько до окончания пробного периода отправляется уведомление.
const TrialWindow = 24 * time.Hour

// Repository поиск пользователей с заканчивающимся пробным периодом.
type Repository interface {
	FindTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*models.User, error)
}

// Publisher публикация уведомлений в брокер.
type Publisher interface {
	Publish(exchange, routingKey string, message any) error
}

// StatsResetter сброс месячной статистики.
type StatsResetter interface {
	ResetMonthlyStats(ctx context.Context) (int64, error)
}

// Service задачи планировщика.
type Service struct {
	repo      Repository
	publisher Publisher
	stats     StatsResetter
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт сервис планировщика.
func New(log *slog.Logger, repo Repository, publisher Publisher, stats StatsResetter) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		stats:     stats,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NotifyExpiringTrials публикует уведомления пользователям, чей пробный период
// заканчивается в ближайшие сутки. Уже оплатившие подписку пропускаются.
// Возвращает число опубликованных сообщений. Ошибка публикации одному
// пользователю не останавливает остальных.
func (s *Service) NotifyExpiringTrials(ctx context.Context) (int, error) {
	const op = "scheduler.NotifyExpiringTrials"
	log := s.log.With(sl.Op(op))

	now := s.now()
	users, err := s.repo.FindTrialsEndingBetween(ctx, now, now.Add(TrialWindow))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(users) == 0 {
		log.Info("no expiring trials found")
		return 0, nil
	}

	published := 0
	for _, u := range users {
		if u.Payment.IsSubscribed(now) {
			continue
		}
		msg := models.TrialExpiringMessage{
			LineUserID:  u.LineUserID,
			DisplayName: u.Profile.DisplayName,
			EndTrialOn:  *u.Payment.EndTrialOn(),
		}
		if err := s.publisher.Publish(rabbitmq.NotificationsExchange, rabbitmq.TrialExpiringKey, msg); err != nil {
			log.Error("failed to publish message", sl.LineUser(u.LineUserID), sl.Err(err))
			continue
		}
		published++
	}
	log.Info("expiring trials notified", slog.Int("found", len(users)), slog.Int("published", published))
	return published, nil
}

// ResetMonthlyStats обнуляет месячную статистику пользователей.
func (s *Service) ResetMonthlyStats(ctx context.Context) error {
	const op = "scheduler.ResetMonthlyStats"
	if _, err := s.stats.ResetMonthlyStats(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
