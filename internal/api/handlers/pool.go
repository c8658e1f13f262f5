// pool.go — обработчик /api/v1/pool/token.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
	"github.com/bigkaa/memberbridge/internal/poolbridge"
)

// IssuePoolToken — POST /api/v1/pool/token.
// Получает токен системы бассейна для владельца сессии.
func (h *APIHandler) IssuePoolToken(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	token, err := h.pool.IssueToken(r.Context(), acc)
	if err != nil {
		switch {
		case errors.Is(err, poolbridge.ErrNotConfigured):
			h.logger.Error("Мост к системе бассейна не настроен")
			apierrors.InternalError(w, "Мост к системе бассейна не настроен")
		case errors.Is(err, poolbridge.ErrUnavailable):
			h.logger.Warn("Система бассейна недоступна",
				slog.String("account_id", acc.ID),
				slog.String("error", err.Error()),
			)
			apierrors.PoolUnavailable(w, "Не удалось получить токен системы бассейна")
		default:
			h.logger.Error("Ошибка выдачи токена бассейна",
				slog.String("account_id", acc.ID),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка выдачи токена бассейна")
		}
		return
	}

	writeJSON(w, http.StatusOK, poolTokenResponse{
		PoolToken: token.Token,
		ExpiresIn: int64(token.ExpiresIn.Seconds()),
	})
}
