// Пакет config — загрузка и валидация конфигурации memberbridge
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения MB_AVATAR_BACKEND.
const (
	AvatarBackendFS   = "fs"
	AvatarBackendS3   = "s3"
	AvatarBackendNone = "none"
)

// Config содержит все параметры конфигурации memberbridge.
// Создаётся один раз при старте и передаётся компонентам явно.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Внешний справочник членов клуба ---

	// Базовый URL API справочника (без trailing slash)
	SociosBaseURL string
	// Значение заголовка Login
	SociosLogin string
	// Значение заголовка Authorization
	SociosToken string
	// Базовый URL фотографий (опционально, без trailing slash)
	SociosImgBaseURL string
	// Таймаут одного запроса к справочнику
	SociosTimeout time.Duration
	// Проверять TLS-сертификат справочника
	SociosTLSVerify bool

	// --- Сессии участников ---

	// Секрет подписи HS256 (не короче 32 байт)
	SessionSecret string
	// Время жизни токена сессии
	SessionTTL time.Duration
	// Значение claim iss
	SessionIssuer string

	// --- Отзыв токенов ---

	// Адрес Redis (опционально; без него используется in-memory LRU)
	RedisAddr string
	// Пароль Redis
	RedisPassword string
	// Размер in-memory списка отозванных токенов
	RevocationCacheSize int

	// --- Аватары ---

	// Хранилище аватаров: fs, s3, none
	AvatarBackend string
	// Каталог для fs-хранилища
	AvatarDir string
	// Публичный префикс пути, который сохраняется в аккаунте (fs)
	AvatarPublicPrefix string
	// Бакет S3
	AvatarS3Bucket string
	// Префикс ключей S3
	AvatarS3Prefix string
	// Переопределение endpoint S3 (MinIO и т.п.)
	AvatarS3Endpoint string

	// --- Мост к системе бассейна ---

	// Внутренний URL выдачи токенов бассейна
	PoolInternalURL string
	// Ключ X-Internal-Key
	PoolInternalKey string
	// Срок действия токена бассейна, сообщаемый клиенту
	PoolTokenExpiresIn time.Duration

	// --- Синхронизация реестра ---

	// Интервал периодической синхронизации (0 — отключена)
	RosterSyncInterval time.Duration
	// Размер пачки upsert
	RosterSyncChunk int

	// --- Администрирование ---

	// URL JWKS для проверки токенов администраторов (пусто — admin API отключён)
	AdminJWKSURL string
	// Ожидаемый issuer токенов администраторов
	AdminJWTIssuer string
	// Роль realm, дающая доступ к admin API
	AdminRole string

	// --- Прочее ---

	// Валидация запросов по встроенному OpenAPI-документу
	OpenAPIValidation bool
	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию сервиса из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadShared(cfg); err != nil {
		return nil, err
	}
	if err := loadService(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRosterSync загружает конфигурацию разовой синхронизации реестра:
// логирование, PostgreSQL, справочник и размер пачки. Параметры сессий,
// аватаров и администрирования не читаются и не проверяются.
func LoadRosterSync() (*Config, error) {
	cfg := &Config{}
	if err := loadShared(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadShared читает параметры, общие для сервиса и roster-sync.
func loadShared(cfg *Config) error {
	var err error

	// --- Сервер ---

	// MB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("MB_PORT", 8080)
	if err != nil {
		return fmt.Errorf("MB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("MB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MB_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("MB_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("MB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("MB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return fmt.Errorf("MB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("MB_DB_HOST"); err != nil {
		return err
	}
	cfg.DBPort, err = getEnvInt("MB_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("MB_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("MB_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("MB_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("MB_DB_PASSWORD"); err != nil {
		return err
	}
	cfg.DBSSLMode = getEnvDefault("MB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("MB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Внешний справочник ---

	if cfg.SociosBaseURL, err = getEnvRequired("MB_SOCIOS_BASE_URL"); err != nil {
		return err
	}
	cfg.SociosBaseURL = strings.TrimRight(cfg.SociosBaseURL, "/")
	if cfg.SociosLogin, err = getEnvRequired("MB_SOCIOS_LOGIN"); err != nil {
		return err
	}
	if cfg.SociosToken, err = getEnvRequired("MB_SOCIOS_TOKEN"); err != nil {
		return err
	}
	cfg.SociosImgBaseURL = strings.TrimRight(getEnvDefault("MB_SOCIOS_IMG_BASE_URL", ""), "/")

	// MB_SOCIOS_TIMEOUT — запросы к справочнику не должны висеть бесконечно
	cfg.SociosTimeout, err = getEnvDuration("MB_SOCIOS_TIMEOUT", 15*time.Second)
	if err != nil {
		return fmt.Errorf("MB_SOCIOS_TIMEOUT: %w", err)
	}
	if cfg.SociosTimeout <= 0 {
		return fmt.Errorf("MB_SOCIOS_TIMEOUT: значение должно быть больше нуля")
	}
	cfg.SociosTLSVerify, err = getEnvBool("MB_SOCIOS_TLS_VERIFY", true)
	if err != nil {
		return fmt.Errorf("MB_SOCIOS_TLS_VERIFY: %w", err)
	}

	// --- Синхронизация реестра ---

	cfg.RosterSyncInterval, err = getEnvDuration("MB_ROSTER_SYNC_INTERVAL", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("MB_ROSTER_SYNC_INTERVAL: %w", err)
	}
	if cfg.RosterSyncInterval < 0 {
		return fmt.Errorf("MB_ROSTER_SYNC_INTERVAL: отрицательное значение %s", cfg.RosterSyncInterval)
	}
	cfg.RosterSyncChunk, err = getEnvInt("MB_ROSTER_SYNC_CHUNK", 500)
	if err != nil {
		return fmt.Errorf("MB_ROSTER_SYNC_CHUNK: %w", err)
	}
	if cfg.RosterSyncChunk < 1 || cfg.RosterSyncChunk > 10000 {
		return fmt.Errorf("MB_ROSTER_SYNC_CHUNK: значение %d вне допустимого диапазона 1-10000", cfg.RosterSyncChunk)
	}

	return nil
}

// loadService читает параметры HTTP-сервиса: сессии, отзыв токенов,
// аватары, мост к бассейну и администрирование.
func loadService(cfg *Config) error {
	var err error

	// --- Сессии ---

	if cfg.SessionSecret, err = getEnvRequired("MB_SESSION_SECRET"); err != nil {
		return err
	}
	if len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("MB_SESSION_SECRET: длина %d байт, требуется не меньше 32", len(cfg.SessionSecret))
	}
	cfg.SessionTTL, err = getEnvDuration("MB_SESSION_TTL", 720*time.Hour)
	if err != nil {
		return fmt.Errorf("MB_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL < time.Minute {
		return fmt.Errorf("MB_SESSION_TTL: значение %s меньше 1m", cfg.SessionTTL)
	}
	cfg.SessionIssuer = getEnvDefault("MB_SESSION_ISSUER", "memberbridge")

	// --- Отзыв токенов ---

	cfg.RedisAddr = getEnvDefault("MB_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("MB_REDIS_PASSWORD", "")
	cfg.RevocationCacheSize, err = getEnvInt("MB_REVOCATION_CACHE_SIZE", 10000)
	if err != nil {
		return fmt.Errorf("MB_REVOCATION_CACHE_SIZE: %w", err)
	}
	if cfg.RevocationCacheSize < 1 {
		return fmt.Errorf("MB_REVOCATION_CACHE_SIZE: значение %d должно быть положительным", cfg.RevocationCacheSize)
	}

	// --- Аватары ---

	cfg.AvatarBackend = getEnvDefault("MB_AVATAR_BACKEND", AvatarBackendFS)
	switch cfg.AvatarBackend {
	case AvatarBackendFS:
		cfg.AvatarDir = getEnvDefault("MB_AVATAR_DIR", "./storage/socios")
		cfg.AvatarPublicPrefix = strings.TrimRight(getEnvDefault("MB_AVATAR_PUBLIC_PREFIX", "storage/socios"), "/")
	case AvatarBackendS3:
		if cfg.AvatarS3Bucket, err = getEnvRequired("MB_AVATAR_S3_BUCKET"); err != nil {
			return err
		}
		cfg.AvatarS3Prefix = getEnvDefault("MB_AVATAR_S3_PREFIX", "socios/")
		cfg.AvatarS3Endpoint = getEnvDefault("MB_AVATAR_S3_ENDPOINT", "")
	case AvatarBackendNone:
	default:
		return fmt.Errorf("MB_AVATAR_BACKEND: недопустимое значение %q, допустимые: fs, s3, none", cfg.AvatarBackend)
	}

	// --- Мост к системе бассейна (оба параметра опциональны, проверяются при вызове) ---

	cfg.PoolInternalURL = getEnvDefault("MB_POOL_INTERNAL_URL", "")
	cfg.PoolInternalKey = getEnvDefault("MB_POOL_INTERNAL_KEY", "")
	cfg.PoolTokenExpiresIn, err = getEnvDuration("MB_POOL_TOKEN_EXPIRES_IN", 30*24*time.Hour)
	if err != nil {
		return fmt.Errorf("MB_POOL_TOKEN_EXPIRES_IN: %w", err)
	}

	// --- Администрирование ---

	cfg.AdminJWKSURL = getEnvDefault("MB_ADMIN_JWKS_URL", "")
	cfg.AdminJWTIssuer = getEnvDefault("MB_ADMIN_JWT_ISSUER", "")
	cfg.AdminRole = getEnvDefault("MB_ADMIN_ROLE", "memberbridge-admin")

	// --- Прочее ---

	cfg.OpenAPIValidation, err = getEnvBool("MB_OPENAPI_VALIDATION", true)
	if err != nil {
		return fmt.Errorf("MB_OPENAPI_VALIDATION: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("MB_DEPHEALTH_GROUP", "memberbridge")
	cfg.DephealthCheckInterval, err = getEnvDuration("MB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return fmt.Errorf("MB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// AdminAuthEnabled сообщает, настроена ли проверка токенов администраторов.
func (c *Config) AdminAuthEnabled() bool {
	return c.AdminJWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool разбирает true/false/1/0 (регистр не важен).
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
