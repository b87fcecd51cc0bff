package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codustry/gebwai/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) FindTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*models.User, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(exchange, routingKey string, message any) error {
	return m.Called(exchange, routingKey, message).Error(0)
}

type StatsMock struct{ mock.Mock }

func (m *StatsMock) ResetMonthlyStats(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var fixedNow = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func trialUser(id string, mutate func(u *models.User)) *models.User {
	u := models.NewUser(models.LINEUser{UserID: id, DisplayName: "name-" + id}, fixedNow)
	u.StartTrial(fixedNow.Add(-models.TrialPeriod + 6*time.Hour))
	if mutate != nil {
		mutate(u)
	}
	return u
}

func TestService_NotifyExpiringTrials(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, p *PublisherMock)
		want       int
		wantErr    bool
	}{
		{
			name: "publishes for each trial user",
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("FindTrialsEndingBetween", mock.Anything, fixedNow, fixedNow.Add(TrialWindow)).
					Return([]*models.User{trialUser("U1", nil), trialUser("U2", nil)}, nil).Once()
				p.On("Publish", "notifications", "trial.expiring", mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.LineUserID == "U1" && m.DisplayName == "name-U1" &&
						m.EndTrialOn.Equal(fixedNow.Add(6*time.Hour))
				})).Return(nil).Once()
				p.On("Publish", "notifications", "trial.expiring", mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.LineUserID == "U2"
				})).Return(nil).Once()
			},
			want: 2,
		},
		{
			name: "subscribed users are skipped",
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				paid := trialUser("U1", func(u *models.User) {
					u.Payment.ExtendSubscription(fixedNow, 1)
				})
				r.On("FindTrialsEndingBetween", mock.Anything, mock.Anything, mock.Anything).
					Return([]*models.User{paid}, nil).Once()
			},
			want: 0,
		},
		{
			name: "publish error does not stop others",
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("FindTrialsEndingBetween", mock.Anything, mock.Anything, mock.Anything).
					Return([]*models.User{trialUser("U1", nil), trialUser("U2", nil)}, nil).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.LineUserID == "U1"
				})).Return(errors.New("channel closed")).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.TrialExpiringMessage) bool {
					return m.LineUserID == "U2"
				})).Return(nil).Once()
			},
			want: 1,
		},
		{
			name: "nothing found",
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("FindTrialsEndingBetween", mock.Anything, mock.Anything, mock.Anything).
					Return([]*models.User{}, nil).Once()
			},
			want: 0,
		},
		{
			name: "repository error",
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("FindTrialsEndingBetween", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("db error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, p := new(RepoMock), new(PublisherMock)
			tt.setupMocks(r, p)

			s := New(newNoopLogger(), r, p, new(StatsMock))
			s.now = func() time.Time { return fixedNow }

			got, err := s.NotifyExpiringTrials(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "scheduler.NotifyExpiringTrials")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			r.AssertExpectations(t)
			p.AssertExpectations(t)
		})
	}
}

func TestService_ResetMonthlyStats(t *testing.T) {
	stats := new(StatsMock)
	stats.On("ResetMonthlyStats", mock.Anything).Return(int64(3), nil).Once()
	stats.On("ResetMonthlyStats", mock.Anything).Return(int64(0), errors.New("db error")).Once()

	s := New(newNoopLogger(), new(RepoMock), new(PublisherMock), stats)
	require.NoError(t, s.ResetMonthlyStats(context.Background()))
	assert.Error(t, s.ResetMonthlyStats(context.Background()))
	stats.AssertExpectations(t)
}
