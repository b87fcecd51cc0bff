// Package user управляет жизненным циклом пользователей бота: регистрацией,
// блокировкой, пробным периодом, настройками источников и статистикой.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/storage/repository"
)

// ErrSourceNotFound у пользователя нет настроек для источника.
var ErrSourceNotFound = errors.New("source settings not found")

// Repository хранилище пользователей.
type Repository interface {
	GetUser(ctx context.Context, lineUserID string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	SaveUser(ctx context.Context, u *models.User) error
	ResetMonthlyStats(ctx context.Context, now time.Time) (int64, error)
}

// Profiles источник профилей LINE.
type Profiles interface {
	Resolve(ctx context.Context, userID, groupID string) (*models.LINEUser, error)
	StartingName(ctx context.Context, sourceType models.SourceType, sourceID string) (string, error)
}

// Service бизнес-логика пользователей.
type Service struct {
	repo     Repository
	profiles Profiles
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис пользователей.
func New(log *slog.Logger, repo Repository, profiles Profiles) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает пользователя. Если его нет, ошибка оборачивает repository.ErrUserNotFound.
func (s *Service) Get(ctx context.Context, lineUserID string) (*models.User, error) {
	const op = "user.Get"
	u, err := s.repo.GetUser(ctx, lineUserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetItDone находит пользователя. С createOrUnblock отсутствующий пользователь
// создаётся, а заблокированный разблокируется; так обрабатывается follow.
// Без флага отсутствующий пользователь даёт nil, nil.
func (s *Service) GetItDone(ctx context.Context, lineUserID string, createOrUnblock bool) (*models.User, error) {
	const op = "user.GetItDone"
	log := s.log.With(sl.Op(op), sl.LineUser(lineUserID))

	u, err := s.repo.GetUser(ctx, lineUserID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		if !createOrUnblock {
			return nil, nil
		}
		u, err = s.create(ctx, lineUserID, "", func(u *models.User) { u.Follow(s.now()) })
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("user created on follow")
		return u, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if createOrUnblock && (u.IsBlocked || u.FollowedOn == nil) {
		u.Follow(s.now())
		if err := s.repo.SaveUser(ctx, u); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("user unblocked")
	}
	return u, nil
}

// EnsureUser находит пользователя или создаёт его без отметки о добавлении в друзья.
// Так появляются пользователи, которых бот впервые увидел в группе.
func (s *Service) EnsureUser(ctx context.Context, lineUserID, groupID string) (*models.User, error) {
	const op = "user.EnsureUser"

	u, err := s.repo.GetUser(ctx, lineUserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err = s.create(ctx, lineUserID, groupID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user created from message", sl.Op(op), sl.LineUser(lineUserID))
	return u, nil
}

func (s *Service) create(ctx context.Context, lineUserID, groupID string, mutate func(u *models.User)) (*models.User, error) {
	profile, err := s.profiles.Resolve(ctx, lineUserID, groupID)
	if err != nil {
		return nil, err
	}
	profile.UserID = lineUserID

	u := models.NewUser(*profile, s.now())
	if mutate != nil {
		mutate(u)
	}
	err = s.repo.CreateUser(ctx, u)
	if errors.Is(err, repository.ErrUserExists) {
		// Параллельное событие успело создать пользователя.
		return s.repo.GetUser(ctx, lineUserID)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Block помечает пользователя заблокировавшим бота (unfollow). Пользователь не удаляется.
func (s *Service) Block(ctx context.Context, lineUserID string) error {
	const op = "user.Block"

	u, err := s.repo.GetUser(ctx, lineUserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if u.IsBlocked {
		return nil
	}
	u.IsBlocked = true
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user blocked", sl.Op(op), sl.LineUser(lineUserID))
	return nil
}

// StartTrial запускает пробный период. Второе значение false, если он уже запускался;
// в этом случае пользователь не сохраняется.
func (s *Service) StartTrial(ctx context.Context, lineUserID string) (*models.User, bool, error) {
	const op = "user.StartTrial"

	u, err := s.repo.GetUser(ctx, lineUserID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !u.StartTrial(s.now()) {
		return u, false, nil
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("trial started", sl.Op(op), sl.LineUser(lineUserID))
	return u, true, nil
}

// GetOrCreateSourceSettings возвращает настройки источника и создаёт их при первом
// сообщении из него. После создания пользователь сохраняется.
func (s *Service) GetOrCreateSourceSettings(ctx context.Context, u *models.User, sourceType models.SourceType, sourceID string) (*models.SourceSettings, error) {
	const op = "user.GetOrCreateSourceSettings"

	if existing, ok := u.Settings.SourceSettings[sourceID]; ok {
		return existing, nil
	}

	name, err := s.profiles.StartingName(ctx, sourceType, sourceID)
	if err != nil {
		s.log.Warn("failed to resolve source name", sl.Op(op),
			slog.String("source_id", sourceID), sl.Err(err))
	}

	beforeFollow := u.FollowedOn == nil
	settings, created := u.Settings.GetOrCreateSourceSettings(sourceID, name, beforeFollow, s.now())
	if !created {
		return settings, nil
	}
	if sourceType == models.SourceGroup {
		u.TutorialExperience.InvitedToGroup = true
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return settings, nil
}

// SourceSettingsPatch изменения настроек источника. nil-поля не меняются.
type SourceSettingsPatch struct {
	Enabled     *bool               `json:"enabled,omitempty"`
	VerifySlip  *bool               `json:"verify_slip,omitempty"`
	GebSettings *models.GebSettings `json:"geb_settings,omitempty"`
}

// UpdateSourceSettings применяет изменения к настройкам источника.
func (s *Service) UpdateSourceSettings(ctx context.Context, lineUserID, sourceID string, patch SourceSettingsPatch) (*models.SourceSettings, error) {
	const op = "user.UpdateSourceSettings"

	u, err := s.repo.GetUser(ctx, lineUserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	settings, ok := u.Settings.SourceSettings[sourceID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrSourceNotFound)
	}

	if patch.Enabled != nil {
		settings.Enabled = *patch.Enabled
	}
	if patch.VerifySlip != nil {
		v := *patch.VerifySlip
		settings.VerifySlip = &v
	}
	if patch.GebSettings != nil {
		settings.GebSettings = *patch.GebSettings
	}

	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return settings, nil
}

// RecordGeb учитывает собранное сообщение, если источник включён и тип сообщения
// разрешён его настройками. Возвращает true, если статистика изменилась.
func (s *Service) RecordGeb(ctx context.Context, u *models.User, sourceID string, fileType models.FileType) (bool, error) {
	const op = "user.RecordGeb"

	settings, ok := u.Settings.SourceSettings[sourceID]
	if !ok || !settings.Enabled || !settings.GebSettings.Allows(fileType) {
		return false, nil
	}
	u.RecordGeb(fileType, s.now())
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ResetMonthlyStats обнуляет месячную статистику всех пользователей.
func (s *Service) ResetMonthlyStats(ctx context.Context) (int64, error) {
	const op = "user.ResetMonthlyStats"

	n, err := s.repo.ResetMonthlyStats(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("monthly stats reset", sl.Op(op), slog.Int64("users", n))
	return n, nil
}
