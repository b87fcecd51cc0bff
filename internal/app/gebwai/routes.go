// Package gebwai собирает HTTP-приложение бота: вебхуки LINE и платёжного шлюза,
// API для страниц LIFF, метрики и документацию.
package gebwai

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/codustry/gebwai/internal/http/handlers/health"
	linehandler "github.com/codustry/gebwai/internal/http/handlers/line"
	omisehandler "github.com/codustry/gebwai/internal/http/handlers/omise"
	"github.com/codustry/gebwai/internal/http/handlers/payment"
	"github.com/codustry/gebwai/internal/http/handlers/settings"
	"github.com/codustry/gebwai/internal/http/handlers/trial"
	"github.com/codustry/gebwai/internal/http/middlewarectx"
)

// Handlers обработчики, которые регистрирует RegisterRoutes.
type Handlers struct {
	LINE     *linehandler.Handler
	Omise    *omisehandler.Handler
	Health   *health.Handler
	Trial    *trial.Handler
	Payment  *payment.Handler
	Settings *settings.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers, tokens middlewarectx.TokenParser, limiter *rate.Limiter) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	// Вебхуки проверяются своими способами, без JWT
	r.Post("/line/callback", h.LINE.ServeHTTP)
	r.Post("/omise/webhook", h.Omise.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(tokens, logger))
		r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))

		r.Post("/trial", h.Trial.ServeHTTP)

		r.Route("/payment", func(r chi.Router) {
			r.Get("/status", h.Payment.Status)
			r.Post("/customer", h.Payment.Customer)
			r.Post("/subscribe", h.Payment.Subscribe)
			r.Post("/charge", h.Payment.Charge)
			r.Post("/one-time", h.Payment.OneTime)
			r.Delete("/subscription", h.Payment.Unsubscribe)
			r.Get("/charges", h.Payment.Charges)
			r.Get("/schedule", h.Payment.Schedule)
			r.Get("/cards", h.Payment.Cards)
			r.Post("/cards", h.Payment.AddCard)
			r.Delete("/cards/{cardID}", h.Payment.RemoveCard)
		})

		r.Put("/settings/sources/{sourceID}", h.Settings.ServeHTTP)
	})

	r.Get("/health", h.Health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
