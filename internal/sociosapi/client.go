// client.go — HTTP-клиент к внешнему справочнику членов клуба.
// Авторизация статическая: заголовки Authorization (токен) и Login.
// Операции: FetchMember (get_socio), FetchFullRoster (get_padron_full),
// FetchPhoto (фотография по внешнему идентификатору).
//
// Ошибки справочника логируются здесь. Наружу отдаются только два исхода:
// «нет данных» (nil, nil) и ErrUnavailable.
package sociosapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// Ошибки клиента справочника.
var (
	// ErrUnavailable — справочник не ответил успешно (сеть, таймаут, статус не 2xx).
	ErrUnavailable = errors.New("справочник членов клуба недоступен")
	// ErrEmptyRoster — справочник вернул пустой или некорректный реестр.
	ErrEmptyRoster = errors.New("справочник вернул пустой реестр")
)

// Ограничения на размер читаемых ответов.
const (
	maxMemberResponseBytes = 1 << 20  // 1 MiB
	maxPhotoBytes          = 10 << 20 // 10 MiB
	maxLoggedBodyBytes     = 512
)

// Client — HTTP-клиент к справочнику членов клуба.
type Client struct {
	baseURL    string // Базовый URL API (без trailing slash)
	login      string // Заголовок Login
	token      string // Заголовок Authorization
	imgBaseURL string // Базовый URL фотографий (может быть пустым)

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент справочника.
// httpClient — HTTP-клиент с таймаутом (см. NewHTTPClient); nil — таймаут 15s.
func New(baseURL, login, token, imgBaseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		login:      login,
		token:      token,
		imgBaseURL: strings.TrimRight(imgBaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "socios_client")),
	}
}

// NewHTTPClient создаёт HTTP-клиент с ограничением времени запроса.
// tlsVerify=false отключает проверку сертификата (только для dev-стендов).
func NewHTTPClient(timeout time.Duration, tlsVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !tlsVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // управляется MB_SOCIOS_TLS_VERIFY
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// --- get_socio ---

// FetchMember ищет участника по номеру документа.
//
// Сначала запрос отправляется как application/x-www-form-urlencoded,
// при отсутствии результата повторяется как multipart/form-data
// (часть инсталляций справочника принимает только его).
// Возвращает (nil, nil), если справочник ответил, но участника нет,
// и ErrUnavailable, если ни одна попытка не получила ответа 2xx.
func (c *Client) FetchMember(ctx context.Context, nationalID string) (*model.DirectoryMember, error) {
	endpoint := c.baseURL + "/get_socio"

	// 1. Попытка form-urlencoded
	form := url.Values{"dni": {nationalID}}
	member, answered, formErr := c.postMember(ctx, "form", endpoint,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if member != nil {
		return member.ToModel(), nil
	}

	// 2. Попытка multipart/form-data
	body, contentType, err := multipartDNI(nationalID)
	if err != nil {
		return nil, fmt.Errorf("формирование multipart-запроса: %w", err)
	}
	member, answered2, multipartErr := c.postMember(ctx, "multipart", endpoint, contentType, body)
	if member != nil {
		return member.ToModel(), nil
	}

	if answered || answered2 {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(formErr, multipartErr))
}

// postMember выполняет одну попытку get_socio.
// answered = true, если справочник вернул 2xx (даже без результата).
func (c *Client) postMember(ctx context.Context, mode, endpoint, contentType string, body io.Reader) (*Member, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, false, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Справочник: ошибка запроса get_socio",
			slog.String("mode", mode),
			slog.String("url", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("запрос get_socio (%s): %w", mode, err)
	}

	env, err := c.decodeEnvelope(resp, mode, endpoint, maxMemberResponseBytes)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, false, err
		}
		// 2xx с нечитаемым телом: справочник ответил, но данных нет
		return nil, true, nil
	}

	result := bytes.TrimSpace(env.Result)
	if len(result) == 0 || result[0] != '{' || bytes.Equal(result, []byte("{}")) {
		c.logger.Info("Справочник: get_socio без результата",
			slog.String("mode", mode),
			slog.String("estado", env.Estado.String()),
			slog.String("msg", env.Msg),
		)
		return nil, true, nil
	}

	var m Member
	if err := json.Unmarshal(result, &m); err != nil {
		c.logger.Error("Справочник: некорректный result get_socio",
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
		return nil, true, nil
	}
	return &m, true, nil
}

// multipartDNI формирует тело multipart/form-data с единственным полем dni.
func multipartDNI(nationalID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("dni", nationalID); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// --- get_padron_full ---

// FetchFullRoster загружает реестр целиком.
// Элементы возвращаются без разбора: нормализацию выполняет синхронизация.
// Пустой или отсутствующий result — ErrEmptyRoster.
func (c *Client) FetchFullRoster(ctx context.Context) ([]json.RawMessage, error) {
	endpoint := c.baseURL + "/get_padron_full"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Справочник: ошибка запроса get_padron_full",
			slog.String("url", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Реестр может быть большим — размер не ограничиваем
	env, err := c.decodeEnvelope(resp, "padron_full", endpoint, 0)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrEmptyRoster, err)
	}

	items, err := rosterItems(env.Result)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmptyRoster, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyRoster
	}

	c.logger.Info("Справочник: реестр получен", slog.Int("items", len(items)))
	return items, nil
}

// rosterItems извлекает элементы реестра из result.
// Справочник отдаёт массив; объект с ключами-идентификаторами
// тоже допускается, элементы берутся в порядке ключей.
func rosterItems(result json.RawMessage) ([]json.RawMessage, error) {
	result = bytes.TrimSpace(result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}

	switch result[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(result, &items); err != nil {
			return nil, fmt.Errorf("разбор массива result: %w", err)
		}
		return items, nil
	case '{':
		var byKey map[string]json.RawMessage
		if err := json.Unmarshal(result, &byKey); err != nil {
			return nil, fmt.Errorf("разбор объекта result: %w", err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]json.RawMessage, 0, len(keys))
		for _, k := range keys {
			items = append(items, byKey[k])
		}
		return items, nil
	default:
		return nil, fmt.Errorf("result не является списком: %.32s", string(result))
	}
}

// --- Фотографии ---

// FetchPhoto загружает фотографию участника {img_base}/{externalID}.jpg.
// Возвращает (nil, nil), если фото нет или ответ не является изображением.
func (c *Client) FetchPhoto(ctx context.Context, externalID string) ([]byte, error) {
	if c.imgBaseURL == "" || externalID == "" {
		return nil, nil
	}

	photoURL := fmt.Sprintf("%s/%s.jpg", c.imgBaseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Справочник: ошибка загрузки фото",
			slog.String("url", photoURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !strings.HasPrefix(contentType, "image/") {
		c.logger.Warn("Справочник: фото не найдено",
			slog.Int("status", resp.StatusCode),
			slog.String("url", photoURL),
			slog.String("content_type", contentType),
		)
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("чтение фото: %w", err)
	}
	return data, nil
}

// --- HTTP helpers ---

// StatusError — ответ справочника со статусом вне 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("справочник вернул статус %d: %s", e.StatusCode, e.Body)
}

// authorize проставляет статические заголовки авторизации.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Login", c.login)
	req.Header.Set("Accept", "application/json")
}

// decodeEnvelope проверяет статус и декодирует конверт ответа.
// limit = 0 — без ограничения размера.
func (c *Client) decodeEnvelope(resp *http.Response, mode, endpoint string, limit int64) (*envelope, error) {
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(body, maxLoggedBodyBytes))
		c.logger.Error("Справочник: HTTP ошибка",
			slog.String("mode", mode),
			slog.Int("status", resp.StatusCode),
			slog.String("url", endpoint),
			slog.String("body", string(raw)),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		c.logger.Error("Справочник: ошибка разбора JSON",
			slog.String("mode", mode),
			slog.String("url", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("декодирование ответа справочника: %w", err)
	}

	c.logger.Debug("Справочник: ответ получен",
		slog.String("mode", mode),
		slog.String("url", endpoint),
		slog.String("estado", env.Estado.String()),
	)
	return &env, nil
}
