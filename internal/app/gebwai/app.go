package gebwai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"golang.org/x/time/rate"

	"github.com/codustry/gebwai/internal/cache"
	"github.com/codustry/gebwai/internal/config"
	"github.com/codustry/gebwai/internal/http/handlers/health"
	linehandler "github.com/codustry/gebwai/internal/http/handlers/line"
	omisehandler "github.com/codustry/gebwai/internal/http/handlers/omise"
	"github.com/codustry/gebwai/internal/http/handlers/payment"
	"github.com/codustry/gebwai/internal/http/handlers/settings"
	"github.com/codustry/gebwai/internal/http/handlers/trial"
	"github.com/codustry/gebwai/internal/lib/jwt"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/line"
	"github.com/codustry/gebwai/internal/migrations"
	"github.com/codustry/gebwai/internal/omise"
	"github.com/codustry/gebwai/internal/services/billing"
	"github.com/codustry/gebwai/internal/services/profile"
	"github.com/codustry/gebwai/internal/services/sender"
	"github.com/codustry/gebwai/internal/services/user"
	"github.com/codustry/gebwai/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервер бота и его ресурсы.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New подключает хранилища, применяет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.gebwai.New"

	db, err := repository.New(ctx, cfg.DBURL())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lineClient, err := line.NewClient(cfg.LineAccessToken, cfg.LineAPIURL)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	omiseClient := omise.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseAPIURL)
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	profiles := profile.New(logger, lineClient, cacheRedis, cfg.ProfileTTL)
	users := user.New(logger, db, profiles)
	billingService := billing.New(logger, omiseClient, db, cfg.LIFFPaymentURL)
	links := sender.New(logger, lineClient, tokens, cfg.LIFFPaymentURL)

	handlers := Handlers{
		LINE:     linehandler.New(logger, cfg.LineChannelSecret, users, profiles, lineClient, links),
		Omise:    omisehandler.New(logger, billingService),
		Health:   health.New(logger, db),
		Trial:    trial.New(logger, users),
		Payment:  payment.New(logger, users, billingService, omiseClient.PublicKey()),
		Settings: settings.New(logger, users),
	}

	router := chi.NewRouter()
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	RegisterRoutes(router, logger, handlers, tokens, limiter)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run запускает сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
