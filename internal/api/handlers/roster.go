// roster.go — обработчики /api/v1/roster endpoints (admin API).
// Синхронизация кэша реестра, его состояние и поиск записи.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
	"github.com/bigkaa/memberbridge/internal/service"
	"github.com/bigkaa/memberbridge/internal/sociosapi"
)

// maxSyncChunk — верхняя граница параметра chunk.
const maxSyncChunk = 10000

// SyncRoster — POST /api/v1/roster/sync?chunk=N.
// Выполняет синхронизацию синхронно и возвращает её итог.
func (h *APIHandler) SyncRoster(w http.ResponseWriter, r *http.Request) {
	chunk := 0
	if raw := r.URL.Query().Get("chunk"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSyncChunk {
			apierrors.ValidationError(w, "chunk должен быть целым числом от 1 до 10000")
			return
		}
		chunk = n
	}

	result, err := h.roster.SyncFullRoster(r.Context(), chunk)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			apierrors.SyncInProgress(w)
		case errors.Is(err, sociosapi.ErrEmptyRoster), errors.Is(err, sociosapi.ErrUnavailable):
			h.logger.Warn("Справочник не вернул реестр", slog.String("error", err.Error()))
			apierrors.UpstreamUnavailable(w, "Справочник не вернул реестр")
		default:
			h.logger.Error("Ошибка синхронизации реестра", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка синхронизации реестра")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapSyncResult(result))
}

// GetRosterStatus — GET /api/v1/roster/status.
func (h *APIHandler) GetRosterStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.roster.Status(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения состояния реестра", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения состояния реестра")
		return
	}

	writeJSON(w, http.StatusOK, mapRosterStatus(status))
}

// GetRosterRecord — GET /api/v1/roster/{national_id}.
func (h *APIHandler) GetRosterRecord(w http.ResponseWriter, r *http.Request) {
	nationalID := chi.URLParam(r, "national_id")

	rec, err := h.roster.GetRecord(r.Context(), nationalID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Запись реестра не найдена")
		default:
			h.logger.Error("Ошибка получения записи реестра",
				slog.String("national_id", nationalID),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка получения записи реестра")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapRosterRecord(rec))
}
