// Package scheduler приложение фоновых задач по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/codustry/gebwai/internal/config"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/rabbitmq"
	schedulerservice "github.com/codustry/gebwai/internal/services/scheduler"
	"github.com/codustry/gebwai/internal/storage/repository"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// App представляет приложение планировщика.
type App struct {
	cron   *cron.Cron
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range dbReadyAttempts {
		if err = db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New подключает брокер и базу и регистрирует задачи.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(ctx, cfg.DBURL())
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	svc := schedulerservice.New(logger, db, rabbitmq.NewPublisher(ch), statsResetter{db: db})

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger)))
	if err := registerJobs(ctx, c, cfg.Scheduler, svc, logger); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	return &App{
		cron:   c,
		db:     db,
		conn:   conn,
		ch:     ch,
		logger: logger,
	}, nil
}

// Jobs задачи планировщика.
type Jobs interface {
	NotifyExpiringTrials(ctx context.Context) (int, error)
	ResetMonthlyStats(ctx context.Context) error
}

func registerJobs(ctx context.Context, c *cron.Cron, cfg config.Scheduler, jobs Jobs, logger *slog.Logger) error {
	if _, err := c.AddFunc(cfg.TrialJobSchedule, func() {
		n, err := jobs.NotifyExpiringTrials(ctx)
		if err != nil {
			logger.Error("trial notification job failed", sl.Err(err))
			return
		}
		logger.Info("trial notification job finished", slog.Int("published", n))
	}); err != nil {
		return fmt.Errorf("invalid trial job schedule %q: %w", cfg.TrialJobSchedule, err)
	}

	if _, err := c.AddFunc(cfg.StatsResetJobSchedule, func() {
		if err := jobs.ResetMonthlyStats(ctx); err != nil {
			logger.Error("stats reset job failed", sl.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid stats reset job schedule %q: %w", cfg.StatsResetJobSchedule, err)
	}
	return nil
}

// statsResetter сбрасывает статистику текущим временем.
type statsResetter struct {
	db *repository.Storage
}

func (s statsResetter) ResetMonthlyStats(ctx context.Context) (int64, error) {
	return s.db.ResetMonthlyStats(ctx, time.Now().UTC())
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает планировщик и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	a.logger.Info("scheduler started", slog.Int("jobs", len(a.cron.Entries())))

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")
	// Дожидаемся уже запущенных задач.
	<-a.cron.Stop().Done()

	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	return nil
}
