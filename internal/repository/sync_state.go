package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// SyncStateRepository — интерфейс для таблицы sync_state (одна строка).
type SyncStateRepository interface {
	// Get возвращает текущее состояние синхронизации.
	Get(ctx context.Context) (*model.SyncState, error)
	// UpdateRosterSync фиксирует результат успешной синхронизации реестра.
	UpdateRosterSync(ctx context.Context, t time.Time, fetched, upserted int) error
}

// syncStateRepo — реализация SyncStateRepository.
type syncStateRepo struct {
	db DBTX
}

// NewSyncStateRepository создаёт репозиторий состояния синхронизации.
func NewSyncStateRepository(db DBTX) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	query := `
		SELECT id, last_roster_sync_at, last_roster_sync_fetched, last_roster_sync_upserted,
			created_at, updated_at
		FROM sync_state
		WHERE id = 1`

	s := &model.SyncState{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.ID, &s.LastRosterSyncAt, &s.LastRosterSyncFetched, &s.LastRosterSyncUpserted,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sync_state: %w", err)
	}
	return s, nil
}

func (r *syncStateRepo) UpdateRosterSync(ctx context.Context, t time.Time, fetched, upserted int) error {
	query := `
		UPDATE sync_state
		SET last_roster_sync_at = $1, last_roster_sync_fetched = $2,
			last_roster_sync_upserted = $3, updated_at = now()
		WHERE id = 1`
	if _, err := r.db.Exec(ctx, query, t, fetched, upserted); err != nil {
		return fmt.Errorf("ошибка обновления состояния синхронизации реестра: %w", err)
	}
	return nil
}
