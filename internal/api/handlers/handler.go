// handler.go — основной обработчик API memberbridge.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/service"
	"github.com/bigkaa/memberbridge/internal/session"
)

// maxBodyBytes — предел размера тела JSON-запроса.
const maxBodyBytes = 64 << 10

// LoginResolver — вход по номеру документа.
// Реализуется service.Resolver.
type LoginResolver interface {
	ResolveLogin(ctx context.Context, nationalID, credential string) (*service.LoginResult, error)
}

// AccountManager — операции с локальными аккаунтами.
// Реализуется service.AccountService.
type AccountManager interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Account, error)
	ChangePassword(ctx context.Context, accountID, current, newPassword, confirmation string) error
	Get(ctx context.Context, accountID string) (*model.Account, error)
}

// SessionIssuer — выпуск и отзыв токенов сессии.
// Реализуется session.Manager.
type SessionIssuer interface {
	Issue(accountID, nationalID string) (string, time.Time, error)
	Revoke(ctx context.Context, claims *session.Claims) error
}

// PoolTokenIssuer — выдача токенов системы бассейна.
// Реализуется poolbridge.Client.
type PoolTokenIssuer interface {
	IssueToken(ctx context.Context, acc *model.Account) (*model.PoolToken, error)
}

// RosterAdmin — администрирование кэша реестра.
// Реализуется service.RosterSyncService.
type RosterAdmin interface {
	SyncFullRoster(ctx context.Context, batchSize int) (*model.RosterSyncResult, error)
	Status(ctx context.Context) (*model.RosterStatus, error)
	GetRecord(ctx context.Context, nationalID string) (*model.RosterRecord, error)
}

// APIHandler — основной обработчик API memberbridge.
type APIHandler struct {
	health   *HealthHandler
	resolver LoginResolver
	accounts AccountManager
	sessions SessionIssuer
	pool     PoolTokenIssuer
	roster   RosterAdmin
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	resolver LoginResolver,
	accounts AccountManager,
	sessions SessionIssuer,
	pool PoolTokenIssuer,
	roster RosterAdmin,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		resolver: resolver,
		accounts: accounts,
		sessions: sessions,
		pool:     pool,
		roster:   roster,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness-проверка (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness-проверка (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst.
// Неизвестные поля отклоняются, тело ограничено maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("Пустое тело запроса")
		}
		return fmt.Errorf("Некорректный JSON: %w", err)
	}
	return nil
}
