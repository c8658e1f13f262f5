package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// RosterRepository — интерфейс для таблицы members_roster.
type RosterRepository interface {
	// GetByNationalID возвращает запись реестра или ErrNotFound.
	GetByNationalID(ctx context.Context, nationalID string) (*model.RosterRecord, error)
	// Exists проверяет наличие номера документа в реестре.
	Exists(ctx context.Context, nationalID string) (bool, error)
	// BulkUpsert вставляет или обновляет пачку записей по national_id.
	// Возвращает число добавленных и фактически изменённых строк.
	BulkUpsert(ctx context.Context, records []*model.RosterRecord) (added, updated int, err error)
	// Count возвращает количество строк в кэше реестра.
	Count(ctx context.Context) (int, error)
}

// rosterRepo — реализация RosterRepository.
type rosterRepo struct {
	db DBTX
}

// NewRosterRepository создаёт репозиторий кэша реестра.
func NewRosterRepository(db DBTX) RosterRepository {
	return &rosterRepo{db: db}
}

func (r *rosterRepo) GetByNationalID(ctx context.Context, nationalID string) (*model.RosterRecord, error) {
	query := `
		SELECT national_id, external_id, full_name, barcode, balance::float8,
			risk_level, last_unpaid_period, full_access, control_flags, raw_snapshot,
			created_at, updated_at
		FROM members_roster
		WHERE national_id = $1`

	var (
		rec                           model.RosterRecord
		externalID, fullName, barcode *string
		controlFlags, rawSnapshot     []byte
	)
	err := r.db.QueryRow(ctx, query, nationalID).Scan(
		&rec.NationalID, &externalID, &fullName, &barcode, &rec.Balance,
		&rec.RiskLevel, &rec.LastUnpaidPeriod, &rec.FullAccess, &controlFlags, &rawSnapshot,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи реестра: %w", err)
	}

	rec.ExternalID = derefString(externalID)
	rec.FullName = derefString(fullName)
	rec.Barcode = derefString(barcode)
	rec.RawSnapshot = rawSnapshot
	rec.ControlFlags, err = model.ParseControlFlags(controlFlags)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора control_flags для %s: %w", nationalID, err)
	}
	return &rec, nil
}

func (r *rosterRepo) Exists(ctx context.Context, nationalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members_roster WHERE national_id = $1)`, nationalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки наличия в реестре: %w", err)
	}
	return exists, nil
}

// upsertRosterQuery обновляет строку только при фактическом расхождении
// изменяемых полей. Неизменённые строки ничего не возвращают,
// created_at при обновлении не трогается.
const upsertRosterQuery = `
	INSERT INTO members_roster (national_id, external_id, full_name, barcode, balance,
		risk_level, last_unpaid_period, full_access, control_flags, raw_snapshot)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (national_id) DO UPDATE SET
		external_id = EXCLUDED.external_id,
		full_name = EXCLUDED.full_name,
		barcode = EXCLUDED.barcode,
		balance = EXCLUDED.balance,
		risk_level = EXCLUDED.risk_level,
		last_unpaid_period = EXCLUDED.last_unpaid_period,
		full_access = EXCLUDED.full_access,
		control_flags = EXCLUDED.control_flags,
		raw_snapshot = EXCLUDED.raw_snapshot,
		updated_at = now()
	WHERE (members_roster.external_id, members_roster.full_name, members_roster.barcode,
			members_roster.balance, members_roster.risk_level, members_roster.last_unpaid_period,
			members_roster.full_access, members_roster.control_flags, members_roster.raw_snapshot)
		IS DISTINCT FROM
		(EXCLUDED.external_id, EXCLUDED.full_name, EXCLUDED.barcode,
			EXCLUDED.balance, EXCLUDED.risk_level, EXCLUDED.last_unpaid_period,
			EXCLUDED.full_access, EXCLUDED.control_flags, EXCLUDED.raw_snapshot)
	RETURNING (xmax = 0) AS is_insert`

// BulkUpsert отправляет пачку одним pgx.Batch.
// Пачка выполняется в неявной транзакции: ошибка в любой строке откатывает всю пачку.
func (r *rosterRepo) BulkUpsert(ctx context.Context, records []*model.RosterRecord) (added, updated int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		raw := []byte(rec.RawSnapshot)
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		batch.Queue(upsertRosterQuery,
			rec.NationalID, nullString(rec.ExternalID), nullString(rec.FullName), nullString(rec.Barcode),
			rec.Balance, rec.RiskLevel, rec.LastUnpaidPeriod, rec.FullAccess,
			rec.ControlFlags.Encode(), raw,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("ошибка завершения пачки upsert: %w", closeErr)
		}
	}()

	for _, rec := range records {
		var isInsert bool
		scanErr := br.QueryRow().Scan(&isInsert)
		switch {
		case errors.Is(scanErr, pgx.ErrNoRows):
			// строка уже актуальна
		case scanErr != nil:
			return 0, 0, fmt.Errorf("ошибка upsert записи реестра %s: %w", rec.NationalID, scanErr)
		case isInsert:
			added++
		default:
			updated++
		}
	}

	return added, updated, nil
}

func (r *rosterRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM members_roster`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей реестра: %w", err)
	}
	return count, nil
}
