// session.go — middleware сессий участников (HS256 bearer-токены).
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
	"github.com/bigkaa/memberbridge/internal/session"
)

// SessionParser — проверка токена сессии.
// Реализуется session.Manager.
type SessionParser interface {
	Parse(ctx context.Context, token string) (*session.Claims, error)
}

// SessionAuth возвращает middleware, требующий действующий токен сессии.
// Claims помещаются в контекст запроса.
func SessionAuth(parser SessionParser, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "session_auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			claims, err := parser.Parse(r.Context(), tokenString)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrRevoked):
				apierrors.Unauthorized(w, "Токен отозван")
				return
			case errors.Is(err, session.ErrInvalidToken):
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			default:
				logger.Error("Ошибка проверки токена сессии", slog.String("error", err.Error()))
				apierrors.InternalError(w, "Ошибка проверки токена")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
		})
	}
}

// SessionFromContext извлекает claims сессии из контекста запроса.
// Возвращает nil, если claims не найдены.
func SessionFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(ContextKeySession).(*session.Claims)
	return claims
}

// WithSession помещает claims сессии в контекст.
// Используется также в тестах обработчиков.
func WithSession(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, ContextKeySession, claims)
}
