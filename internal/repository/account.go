package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// Имена ограничений уникальности таблицы accounts.
const (
	constraintAccountNationalID = "uq_accounts_national_id"
	constraintAccountEmail      = "uq_accounts_email"
)

// AccountRepository — интерфейс для таблицы accounts.
type AccountRepository interface {
	// Create создаёт аккаунт. Нарушение UNIQUE(national_id) или UNIQUE(email)
	// возвращается как ErrConflict.
	Create(ctx context.Context, a *model.Account) error
	// GetByID возвращает аккаунт по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByNationalID возвращает аккаунт по номеру документа или ErrNotFound.
	GetByNationalID(ctx context.Context, nationalID string) (*model.Account, error)
	// Update сохраняет профильные поля аккаунта.
	Update(ctx context.Context, a *model.Account) error
	// UpdateCredential заменяет хэш пароля.
	UpdateCredential(ctx context.Context, id, credentialHash string) error
	// EmailExists проверяет, занят ли email (без учёта регистра).
	EmailExists(ctx context.Context, email string) (bool, error)
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий локальных аккаунтов.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

// accountColumns — порядок колонок совпадает со scanAccount.
const accountColumns = `id, national_id, display_name, email, credential_hash,
	external_id, barcode, given_name, surname, nationality, birth_date,
	address, locality, phone, mobile, membership_category, membership_status,
	last_remote_sync_at, avatar_path, is_admin, created_at, updated_at`

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (id, national_id, display_name, email, credential_hash,
			external_id, barcode, given_name, surname, nationality, birth_date,
			address, locality, phone, mobile, membership_category, membership_status,
			last_remote_sync_at, avatar_path, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.NationalID, a.DisplayName, nullString(a.Email), a.CredentialHash,
		nullString(a.ExternalID), nullString(a.Barcode), nullString(a.GivenName), nullString(a.Surname),
		nullString(a.Nationality), a.BirthDate,
		nullString(a.Address), nullString(a.Locality), nullString(a.Phone), nullString(a.Mobile),
		nullString(a.MembershipCategory), nullString(a.MembershipStatus),
		a.LastRemoteSyncAt, nullString(a.AvatarPath), a.IsAdmin,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if c := violatedConstraint(err); c != "" {
			return fmt.Errorf("%w: %s", ErrConflict, describeAccountConstraint(c))
		}
		return fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *accountRepo) GetByNationalID(ctx context.Context, nationalID string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE national_id = $1`
	return r.getOne(ctx, query, nationalID)
}

func (r *accountRepo) getOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return a, nil
}

func (r *accountRepo) Update(ctx context.Context, a *model.Account) error {
	query := `
		UPDATE accounts SET
			display_name = $2, email = $3, external_id = $4, barcode = $5,
			given_name = $6, surname = $7, nationality = $8, birth_date = $9,
			address = $10, locality = $11, phone = $12, mobile = $13,
			membership_category = $14, membership_status = $15,
			last_remote_sync_at = $16, avatar_path = $17,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.DisplayName, nullString(a.Email), nullString(a.ExternalID), nullString(a.Barcode),
		nullString(a.GivenName), nullString(a.Surname), nullString(a.Nationality), a.BirthDate,
		nullString(a.Address), nullString(a.Locality), nullString(a.Phone), nullString(a.Mobile),
		nullString(a.MembershipCategory), nullString(a.MembershipStatus),
		a.LastRemoteSyncAt, nullString(a.AvatarPath),
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if c := violatedConstraint(err); c != "" {
			return fmt.Errorf("%w: %s", ErrConflict, describeAccountConstraint(c))
		}
		return fmt.Errorf("ошибка обновления аккаунта: %w", err)
	}
	return nil
}

func (r *accountRepo) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET credential_hash = $2, updated_at = now() WHERE id = $1`,
		id, credentialHash,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки email: %w", err)
	}
	return exists, nil
}

// scanAccount читает строку accounts в порядке accountColumns.
func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a                                                          model.Account
		email, externalID, barcode, givenName, surname, nationality *string
		address, locality, phone, mobile, category, status, avatar *string
	)
	err := row.Scan(
		&a.ID, &a.NationalID, &a.DisplayName, &email, &a.CredentialHash,
		&externalID, &barcode, &givenName, &surname, &nationality, &a.BirthDate,
		&address, &locality, &phone, &mobile, &category, &status,
		&a.LastRemoteSyncAt, &avatar, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Email = derefString(email)
	a.ExternalID = derefString(externalID)
	a.Barcode = derefString(barcode)
	a.GivenName = derefString(givenName)
	a.Surname = derefString(surname)
	a.Nationality = derefString(nationality)
	a.Address = derefString(address)
	a.Locality = derefString(locality)
	a.Phone = derefString(phone)
	a.Mobile = derefString(mobile)
	a.MembershipCategory = derefString(category)
	a.MembershipStatus = derefString(status)
	a.AvatarPath = derefString(avatar)
	return &a, nil
}

// describeAccountConstraint переводит имя ограничения в понятное сообщение.
func describeAccountConstraint(constraint string) string {
	switch {
	case constraint == constraintAccountNationalID:
		return "аккаунт с таким номером документа уже существует"
	case strings.HasPrefix(constraint, constraintAccountEmail):
		return "аккаунт с таким email уже существует"
	default:
		return "аккаунт уже существует"
	}
}
