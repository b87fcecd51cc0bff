// Package sender приложение, которое доставляет уведомления из брокера в LINE.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/codustry/gebwai/internal/config"
	"github.com/codustry/gebwai/internal/lib/jwt"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/line"
	"github.com/codustry/gebwai/internal/rabbitmq"
	senderservice "github.com/codustry/gebwai/internal/services/sender"
)

// App потребитель очереди уведомлений.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New подключается к брокеру и объявляет очереди.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	lineClient, err := line.NewClient(cfg.LineAccessToken, cfg.LineAPIURL)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	senderService := senderservice.New(logger, lineClient, tokens, cfg.LIFFPaymentURL)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run обрабатывает сообщения до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.TrialQueue, a.senderService.HandleTrialExpiring)
	if err != nil {
		a.logger.Error("failed to start trial queue consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
