// roster-sync — разовая полная синхронизация реестра членов клуба.
// Предназначен для запуска из CronJob или вручную при первичной загрузке:
// применяет миграции, загружает реестр из справочника, выполняет upsert
// и завершается с ненулевым кодом при ошибке.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/memberbridge/internal/config"
	"github.com/bigkaa/memberbridge/internal/database"
	"github.com/bigkaa/memberbridge/internal/repository"
	"github.com/bigkaa/memberbridge/internal/service"
	"github.com/bigkaa/memberbridge/internal/sociosapi"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения (без параметров сессий и аватаров)
	cfg, err := config.LoadRosterSync()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	chunk := flag.Int("chunk", cfg.RosterSyncChunk, "размер пачки upsert")
	flag.Parse()

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg).With(slog.String("command", "roster-sync"))

	// Прерывание по SIGINT/SIGTERM отменяет загрузку и текущую транзакцию
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *chunk, logger); err != nil {
		logger.Error("Синхронизация реестра завершилась ошибкой", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, chunk int, logger *slog.Logger) error {
	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 4. Клиент справочника
	client := sociosapi.New(
		cfg.SociosBaseURL,
		cfg.SociosLogin,
		cfg.SociosToken,
		cfg.SociosImgBaseURL,
		sociosapi.NewHTTPClient(cfg.SociosTimeout, cfg.SociosTLSVerify),
		logger,
	)

	// 5. Синхронизация без фонового планировщика
	svc := service.NewRosterSyncService(
		client,
		repository.NewRosterRepository(pool),
		repository.NewSyncStateRepository(pool),
		cfg.RosterSyncChunk,
		0,
		logger,
	)

	result, err := svc.SyncFullRoster(ctx, chunk)
	if err != nil {
		return err
	}

	logger.Info("Реестр синхронизирован",
		slog.Int("fetched", result.Fetched),
		slog.Int("skipped", result.Skipped),
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("batch_size", result.BatchSize),
		slog.Duration("duration", result.CompletedAt.Sub(result.StartedAt)),
	)
	return nil
}
