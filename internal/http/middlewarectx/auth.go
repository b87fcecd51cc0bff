// Package middlewarectx содержит HTTP middleware платёжного API: проверку токена
// страницы LIFF и ограничение частоты запросов.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/codustry/gebwai/internal/http/response"
	"github.com/codustry/gebwai/internal/lib/jwt"
	"github.com/codustry/gebwai/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// LineUserID ключ LINE user id в контексте.
const LineUserID Key = "line_user_id"

// TokenParser проверяет токен и возвращает его данные.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.Claims, error)
}

// WithLineUserID кладёт LINE user id в контекст.
func WithLineUserID(ctx context.Context, lineUserID string) context.Context {
	return context.WithValue(ctx, LineUserID, lineUserID)
}

// LineUserIDFrom достаёт LINE user id из контекста.
func LineUserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(LineUserID).(string)
	return id, ok && id != ""
}

// JWTMiddleware проверяет Bearer-токен в заголовке Authorization и кладёт
// LINE user id в контекст. Без валидного токена отвечает 401.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithLineUserID(r.Context(), claims.LineUserID)))
		})
	}
}
