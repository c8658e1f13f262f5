package model

import "time"

// SyncState — состояние синхронизации (одна строка в БД).
// Хранится в таблице sync_state (id = 1, всегда одна запись).
type SyncState struct {
	// ID — всегда 1
	ID int
	// LastRosterSyncAt — время последней успешной синхронизации реестра
	LastRosterSyncAt *time.Time
	// LastRosterSyncFetched — сколько записей вернул справочник
	LastRosterSyncFetched int
	// LastRosterSyncUpserted — сколько строк было добавлено или изменено
	LastRosterSyncUpserted int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RosterSyncResult — результат синхронизации реестра.
type RosterSyncResult struct {
	// Fetched — записей получено от справочника
	Fetched int
	// Skipped — записей отброшено (не объект, пустой номер документа, повтор)
	Skipped int
	// Added — новых строк
	Added int
	// Updated — строк с фактически изменёнными полями
	Updated int
	// Unchanged — строк без изменений
	Unchanged int
	// BatchSize — размер пачки upsert
	BatchSize   int
	StartedAt   time.Time
	CompletedAt time.Time
}

// Upserted возвращает число затронутых строк.
func (r *RosterSyncResult) Upserted() int {
	return r.Added + r.Updated
}

// RosterStatus — сводка по кэшу реестра для admin API.
type RosterStatus struct {
	State       *SyncState
	RosterCount int
}
