package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codustry/gebwai/internal/models"
)

const uniqueViolation = "23505"

const userColumns = `line_user_id, profile, settings, payment, stats, tutorial_experience,
		      tier, is_blocked, followed_on, refer_by_user, refer_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u          models.User
		followedOn sql.NullTime
		referBy    sql.NullString
		referTime  sql.NullTime
	)
	var profile, settings, payment, stats, tx []byte
	if err := row.Scan(&u.LineUserID, &profile, &settings, &payment, &stats, &tx,
		&u.Tier, &u.IsBlocked, &followedOn, &referBy, &referTime, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	docs := []struct {
		raw []byte
		dst any
	}{
		{profile, &u.Profile},
		{settings, &u.Settings},
		{payment, &u.Payment},
		{stats, &u.Stats},
		{tx, &u.TutorialExperience},
	}
	for _, d := range docs {
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, err
		}
	}

	if followedOn.Valid {
		u.FollowedOn = &followedOn.Time
	}
	if referBy.Valid {
		u.ReferByUser = &referBy.String
	}
	if referTime.Valid {
		u.ReferTime = &referTime.Time
	}
	return &u, nil
}

type userRow struct {
	profile         string
	settings        string
	payment         string
	stats           string
	tutorial        string
	omiseCustomerID sql.NullString
	trialEndsAt     sql.NullTime
}

func marshalUser(u *models.User) (*userRow, error) {
	var r userRow
	fields := []struct {
		src any
		dst *string
	}{
		{u.Profile, &r.profile},
		{u.Settings, &r.settings},
		{u.Payment, &r.payment},
		{u.Stats, &r.stats},
		{u.TutorialExperience, &r.tutorial},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = string(b)
	}

	if u.Payment.OmiseCustomerID != "" {
		r.omiseCustomerID = sql.NullString{String: u.Payment.OmiseCustomerID, Valid: true}
	}
	if end := u.Payment.EndTrialOn(); end != nil {
		r.trialEndsAt = sql.NullTime{Time: *end, Valid: true}
	}
	return &r, nil
}

// GetUser возвращает пользователя по LINE user id.
func (s *Storage) GetUser(ctx context.Context, lineUserID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE line_user_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, lineUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindUserByOmiseCustomerID возвращает пользователя по id клиента в платёжном шлюзе.
func (s *Storage) FindUserByOmiseCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	const op = "storage.FindUserByOmiseCustomerID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE omise_customer_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	r, err := marshalUser(u)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO users (line_user_id, profile, settings, payment, stats, tutorial_experience,
			      tier, is_blocked, followed_on, refer_by_user, refer_time, omise_customer_id,
			      trial_ends_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = s.DB.ExecContext(ctx, query,
		u.LineUserID, r.profile, r.settings, r.payment, r.stats, r.tutorial,
		string(u.Tier), u.IsBlocked, u.FollowedOn, u.ReferByUser, u.ReferTime, r.omiseCustomerID, r.trialEndsAt,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveUser записывает пользователя целиком, создавая его при отсутствии.
// UpdatedAt выставляется в момент сохранения.
func (s *Storage) SaveUser(ctx context.Context, u *models.User) error {
	const op = "storage.SaveUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u.UpdatedAt = time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = u.UpdatedAt
	}
	r, err := marshalUser(u)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO users (line_user_id, profile, settings, payment, stats, tutorial_experience,
			      tier, is_blocked, followed_on, refer_by_user, refer_time, omise_customer_id,
			      trial_ends_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  ON CONFLICT (line_user_id) DO UPDATE SET
			      profile = EXCLUDED.profile,
			      settings = EXCLUDED.settings,
			      payment = EXCLUDED.payment,
			      stats = EXCLUDED.stats,
			      tutorial_experience = EXCLUDED.tutorial_experience,
			      tier = EXCLUDED.tier,
			      is_blocked = EXCLUDED.is_blocked,
			      followed_on = EXCLUDED.followed_on,
			      refer_by_user = EXCLUDED.refer_by_user,
			      refer_time = EXCLUDED.refer_time,
			      omise_customer_id = EXCLUDED.omise_customer_id,
			      trial_ends_at = EXCLUDED.trial_ends_at,
			      updated_at = EXCLUDED.updated_at`
	_, err = s.DB.ExecContext(ctx, query,
		u.LineUserID, r.profile, r.settings, r.payment, r.stats, r.tutorial,
		string(u.Tier), u.IsBlocked, u.FollowedOn, u.ReferByUser, u.ReferTime, r.omiseCustomerID, r.trialEndsAt,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindTrialsEndingBetween находит не заблокированных пользователей,
// чей пробный период заканчивается в интервале [from, to).
func (s *Storage) FindTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*models.User, error) {
	const op = "storage.FindTrialsEndingBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE trial_ends_at >= $1 AND trial_ends_at < $2 AND NOT is_blocked
			  ORDER BY trial_ends_at`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ResetMonthlyStats обнуляет месячную статистику у всех пользователей.
// Возвращает число затронутых строк.
func (s *Storage) ResetMonthlyStats(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.ResetMonthlyStats"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	stats, err := json.Marshal(models.MonthlyStats{Updated: now})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET stats = $1, updated_at = $2`, string(stats), now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
