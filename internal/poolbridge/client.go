// Пакет poolbridge — получение токена внешней системы бассейна
// для вошедшего участника. Запрос идёт на внутренний endpoint
// с общим ключом в заголовке X-Internal-Key.
package poolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// Ошибки моста.
var (
	// ErrNotConfigured — не заданы URL или ключ внутреннего endpoint.
	ErrNotConfigured = errors.New("мост к системе бассейна не настроен")
	// ErrUnavailable — система бассейна не выдала токен.
	ErrUnavailable = errors.New("система бассейна не выдала токен")
)

// externalProvider — идентификатор нашей системы на стороне бассейна.
const externalProvider = "vm"

// tokenRequest — тело запроса внутреннего endpoint.
type tokenRequest struct {
	ExternalProvider string  `json:"external_provider"`
	ExternalUserID   string  `json:"external_user_id"`
	Email            *string `json:"email"`
	DNI              *string `json:"dni"`
	Nombre           *string `json:"nombre"`
	Apellido         *string `json:"apellido"`
}

// tokenResponse — ответ внутреннего endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}

// Client — клиент внутреннего endpoint системы бассейна.
type Client struct {
	url        string
	key        string
	expiresIn  time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. Пустые url или key допустимы:
// IssueToken тогда возвращает ErrNotConfigured.
func New(url, key string, expiresIn time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		url:        url,
		key:        key,
		expiresIn:  expiresIn,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "pool_bridge")),
	}
}

// IssueToken запрашивает токен бассейна для аккаунта.
func (c *Client) IssueToken(ctx context.Context, acc *model.Account) (*model.PoolToken, error) {
	if c.url == "" || c.key == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(tokenRequest{
		ExternalProvider: externalProvider,
		ExternalUserID:   acc.ID,
		Email:            optional(acc.Email),
		DNI:              optional(acc.NationalID),
		Nombre:           optional(acc.GivenName),
		Apellido:         optional(acc.Surname),
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Ошибка запроса токена бассейна",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Система бассейна вернула ошибку",
			slog.String("account_id", acc.ID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(body), 512)),
		)
		return nil, fmt.Errorf("%w: статус %d", ErrUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.Token == "" {
		c.logger.Error("Система бассейна ответила без токена",
			slog.String("account_id", acc.ID),
			slog.String("body", truncate(string(body), 512)),
		)
		return nil, fmt.Errorf("%w: ответ без токена", ErrUnavailable)
	}

	return &model.PoolToken{Token: tr.Token, ExpiresIn: c.expiresIn}, nil
}

// optional возвращает nil для пустой строки (в JSON — null).
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
