// Точка входа memberbridge — мост между справочником членов клуба
// и локальными аккаунтами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиенты справочника и системы бассейна, сервисный слой и API handlers,
// запускает фоновую синхронизацию реестра, topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/memberbridge/internal/api/handlers"
	"github.com/bigkaa/memberbridge/internal/api/middleware"
	"github.com/bigkaa/memberbridge/internal/api/openapi"
	"github.com/bigkaa/memberbridge/internal/avatar"
	"github.com/bigkaa/memberbridge/internal/config"
	"github.com/bigkaa/memberbridge/internal/credentials"
	"github.com/bigkaa/memberbridge/internal/database"
	"github.com/bigkaa/memberbridge/internal/poolbridge"
	"github.com/bigkaa/memberbridge/internal/repository"
	"github.com/bigkaa/memberbridge/internal/server"
	"github.com/bigkaa/memberbridge/internal/service"
	"github.com/bigkaa/memberbridge/internal/session"
	"github.com/bigkaa/memberbridge/internal/sociosapi"
)

const (
	// jwksRefreshInterval — период обновления ключей IdP администраторов.
	jwksRefreshInterval = 5 * time.Minute
	// poolBridgeTimeout — таймаут запроса к системе бассейна.
	poolBridgeTimeout = 10 * time.Second
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("memberbridge запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	rosterRepo := repository.NewRosterRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)
	syncStateRepo := repository.NewSyncStateRepository(pool)

	// 6. Клиент справочника членов клуба
	if !cfg.SociosTLSVerify {
		logger.Warn("Проверка TLS-сертификата справочника отключена (MB_SOCIOS_TLS_VERIFY=false)")
	}
	sociosClient := sociosapi.New(
		cfg.SociosBaseURL,
		cfg.SociosLogin,
		cfg.SociosToken,
		cfg.SociosImgBaseURL,
		sociosapi.NewHTTPClient(cfg.SociosTimeout, cfg.SociosTLSVerify),
		logger,
	)

	// 7. Хранилище аватаров
	avatars, err := buildAvatarStore(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка создания хранилища аватаров", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Хранилище аватаров", slog.String("backend", cfg.AvatarBackend))

	// 8. Список отзыва токенов (Redis или in-memory)
	var (
		revocations  session.Revocations
		redisChecker handlers.ReadinessChecker
	)
	if cfg.RedisAddr != "" {
		redisClient, redisErr := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if redisErr != nil {
			logger.Error("Ошибка подключения к Redis", slog.String("error", redisErr.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		redisRevocations := session.NewRedisRevocations(redisClient)
		revocations = redisRevocations
		redisChecker = redisRevocations
		logger.Info("Список отзыва токенов в Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		revocations = session.NewMemoryRevocations(cfg.RevocationCacheSize, cfg.SessionTTL)
		logger.Warn("MB_REDIS_ADDR не задан, список отзыва токенов хранится в памяти процесса")
	}
	sessions := session.NewManager([]byte(cfg.SessionSecret), cfg.SessionIssuer, cfg.SessionTTL, revocations)

	// 9. Services
	hasher := credentials.NewBcryptHasher(0)
	resolver := service.NewResolver(rosterRepo, accountRepo, sociosClient, hasher, avatars, logger)
	accountSvc := service.NewAccountService(accountRepo, rosterRepo, hasher, logger)
	rosterSyncSvc := service.NewRosterSyncService(
		sociosClient, rosterRepo, syncStateRepo,
		cfg.RosterSyncChunk, cfg.RosterSyncInterval,
		logger,
	)

	// 10. Мост к системе бассейна
	poolClient := poolbridge.New(
		cfg.PoolInternalURL,
		cfg.PoolInternalKey,
		cfg.PoolTokenExpiresIn,
		&http.Client{Timeout: poolBridgeTimeout},
		logger,
	)
	if cfg.PoolInternalURL == "" {
		logger.Warn("MB_POOL_INTERNAL_URL не задан, выдача токенов бассейна недоступна")
	}

	// 11. Readiness checkers и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), redisChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		resolver,
		accountSvc,
		sessions,
		poolClient,
		rosterSyncSvc,
		logger,
	)

	routes := server.Routes{
		Handler:   apiHandler,
		Sessions:  sessions,
		AdminRole: cfg.AdminRole,
	}

	// 12. JWT middleware администраторов (опционально)
	if cfg.AdminAuthEnabled() {
		adminAuth, authErr := middleware.NewJWTAuth(cfg.AdminJWKSURL, cfg.AdminJWTIssuer, jwksRefreshInterval, logger)
		if authErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", authErr.Error()))
			os.Exit(1)
		}
		routes.AdminAuth = adminAuth
		logger.Info("Admin API включён",
			slog.String("jwks_url", cfg.AdminJWKSURL),
			slog.String("role", cfg.AdminRole),
		)
	} else {
		logger.Info("Admin API отключён (MB_ADMIN_JWKS_URL не задан)")
	}

	// 13. Валидация запросов по OpenAPI
	if cfg.OpenAPIValidation {
		doc, docErr := openapi.Load()
		if docErr != nil {
			logger.Error("Ошибка загрузки OpenAPI", slog.String("error", docErr.Error()))
			os.Exit(1)
		}
		validator, validatorErr := middleware.OpenAPIValidator(doc, logger)
		if validatorErr != nil {
			logger.Error("Ошибка создания OpenAPI-валидатора", slog.String("error", validatorErr.Error()))
			os.Exit(1)
		}
		routes.Validator = validator
	}

	// 14. Запуск фоновых задач
	rosterSyncSvc.Start(ctx)

	// 14.1 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"memberbridge",
		cfg.DephealthGroup,
		pgDB,
		service.DephealthTargets{
			PostgresURL:            cfg.DatabaseURL(),
			DirectoryURL:           cfg.SociosBaseURL,
			DirectoryTLSSkipVerify: !cfg.SociosTLSVerify,
			PoolURL:                cfg.PoolInternalURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		healthHandler.SetDependencies(dephealthSvc)
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, routes)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	rosterSyncSvc.Stop()

	logger.Info("memberbridge остановлен")
}

// buildAvatarStore создаёт хранилище аватаров по MB_AVATAR_BACKEND.
// Для "none" возвращает nil: фото не сохраняются.
func buildAvatarStore(ctx context.Context, cfg *config.Config) (avatar.Store, error) {
	switch cfg.AvatarBackend {
	case config.AvatarBackendS3:
		client, err := avatar.NewS3Client(ctx, cfg.AvatarS3Endpoint)
		if err != nil {
			return nil, err
		}
		return avatar.NewS3Store(client, cfg.AvatarS3Bucket, cfg.AvatarS3Prefix), nil
	case config.AvatarBackendFS:
		return avatar.NewFSStore(cfg.AvatarDir, cfg.AvatarPublicPrefix), nil
	default:
		return nil, nil
	}
}
