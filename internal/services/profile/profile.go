// Package profile получает профили пользователей и названия групп LINE
// с кешированием в redis.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
)

// LINEClient методы Messaging API для чтения профилей.
type LINEClient interface {
	GetProfile(ctx context.Context, userID string) (*models.LINEUser, error)
	GetGroupMemberProfile(ctx context.Context, groupID, userID string) (*models.LINEUser, error)
	GetGroupSummary(ctx context.Context, groupID string) (*models.GroupSummary, error)
}

// Cache кеш JSON-значений.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service профили LINE с кешем.
type Service struct {
	line  LINEClient
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// New создаёт сервис профилей.
func New(log *slog.Logger, line LINEClient, cache Cache, ttl time.Duration) *Service {
	return &Service{
		line:  line,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func profileKey(userID string) string {
	return "line:profile:" + userID
}

func groupKey(groupID string) string {
	return "line:group:" + groupID
}

// cached читает значение из кеша или получает его через fetch и кладёт в кеш.
// Ошибки кеша только логируются.
func cached[T any](ctx context.Context, s *Service, key string, fetch func() (*T, error)) (*T, error) {
	var v T
	found, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.log.Warn("failed to read cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &v, nil
	}

	res, err := fetch()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, res, s.ttl); err != nil {
		s.log.Warn("failed to write cache", slog.String("key", key), sl.Err(err))
	}
	return res, nil
}

// Profile профиль пользователя, добавившего бота в друзья.
func (s *Service) Profile(ctx context.Context, userID string) (*models.LINEUser, error) {
	const op = "profile.Profile"
	p, err := cached(ctx, s, profileKey(userID), func() (*models.LINEUser, error) {
		return s.line.GetProfile(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// MemberProfile профиль участника группы. Работает и для тех, кто не добавил бота в друзья.
func (s *Service) MemberProfile(ctx context.Context, groupID, userID string) (*models.LINEUser, error) {
	const op = "profile.MemberProfile"
	p, err := cached(ctx, s, profileKey(userID), func() (*models.LINEUser, error) {
		return s.line.GetGroupMemberProfile(ctx, groupID, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GroupSummary название и картинка группы.
func (s *Service) GroupSummary(ctx context.Context, groupID string) (*models.GroupSummary, error) {
	const op = "profile.GroupSummary"
	g, err := cached(ctx, s, groupKey(groupID), func() (*models.GroupSummary, error) {
		return s.line.GetGroupSummary(ctx, groupID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return g, nil
}

// Resolve профиль пользователя: для событий из группы через участника группы,
// иначе через профиль друга.
func (s *Service) Resolve(ctx context.Context, userID, groupID string) (*models.LINEUser, error) {
	if groupID != "" {
		return s.MemberProfile(ctx, groupID, userID)
	}
	return s.Profile(ctx, userID)
}

// StartingName название источника на момент его появления у пользователя:
// имя группы, имя собеседника в личном чате или пустая строка для комнат.
func (s *Service) StartingName(ctx context.Context, sourceType models.SourceType, sourceID string) (string, error) {
	switch sourceType {
	case models.SourceGroup:
		g, err := s.GroupSummary(ctx, sourceID)
		if err != nil {
			return "", err
		}
		return g.GroupName, nil
	case models.SourceUser:
		p, err := s.Profile(ctx, sourceID)
		if err != nil {
			return "", err
		}
		return p.DisplayName, nil
	default:
		return "", nil
	}
}

// Forget удаляет профиль из кеша, например после unfollow.
func (s *Service) Forget(ctx context.Context, userID string) error {
	return s.cache.Invalidate(ctx, profileKey(userID))
}
