// resolver.go — определение аккаунта при входе участника по номеру документа.
//
// Порядок:
//  1. Нормализация номера документа (trim), пустой — ErrValidation.
//  2. Поиск в кэше реестра (отсутствие не ошибка).
//  3. Поиск локального аккаунта.
//  4. Аккаунт есть: проверка пароля, дозаполнение из реестра → SourceLocal.
//  5. Нет аккаунта, есть реестр: создание из реестра → SourceRoster.
//  6. Иначе запрос в справочник: создание по ответу → SourceRemote.
//
// Новые аккаунты получают начальный пароль, равный номеру документа,
// независимо от введённого. Гонка двух первых входов разрешается
// ограничением UNIQUE(national_id): проигравший перечитывает аккаунт
// один раз и проверяет пароль по нему.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/memberbridge/internal/avatar"
	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/repository"
)

// Prometheus-метрики входа.
var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_login_total",
		Help: "Количество попыток входа по источнику аккаунта и результату.",
	}, []string{"source", "outcome"})
	loginBackfillFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_login_backfill_failures_total",
		Help: "Количество входов, при которых не удалось сохранить данные из реестра в аккаунт.",
	})
)

// Directory — операции внешнего справочника, нужные при входе.
type Directory interface {
	// FetchMember возвращает (nil, nil), если участник не найден.
	FetchMember(ctx context.Context, nationalID string) (*model.DirectoryMember, error)
	// FetchPhoto возвращает (nil, nil), если фото нет.
	FetchPhoto(ctx context.Context, externalID string) ([]byte, error)
}

// CredentialHasher — хэширование и проверка паролей.
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	Account *model.Account
	Source  model.LoginSource
	// RosterFound — номер документа найден в кэше реестра
	RosterFound bool
}

// Resolver определяет или создаёт локальный аккаунт при входе.
type Resolver struct {
	roster    repository.RosterRepository
	accounts  repository.AccountRepository
	directory Directory
	hasher    CredentialHasher
	avatars   avatar.Store
	logger    *slog.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewResolver создаёт Resolver. avatars может быть nil — фото не сохраняются.
func NewResolver(
	roster repository.RosterRepository,
	accounts repository.AccountRepository,
	directory Directory,
	hasher CredentialHasher,
	avatars avatar.Store,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		roster:    roster,
		accounts:  accounts,
		directory: directory,
		hasher:    hasher,
		avatars:   avatars,
		logger:    logger.With(slog.String("component", "resolver")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ResolveLogin выполняет вход по номеру документа и паролю.
//
// Ошибки: ErrValidation, ErrInvalidCredential, ErrNotFound,
// ErrUpstreamUnavailable, ErrConflict; прочие — ошибки хранилища.
func (r *Resolver) ResolveLogin(ctx context.Context, nationalID, credential string) (*LoginResult, error) {
	result, err := r.resolve(ctx, nationalID, credential)

	source := "none"
	if result != nil {
		source = string(result.Source)
	}
	loginTotal.WithLabelValues(source, loginOutcome(err)).Inc()

	return result, err
}

func (r *Resolver) resolve(ctx context.Context, nationalID, credential string) (*LoginResult, error) {
	// 1. Нормализация
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, fmt.Errorf("%w: номер документа обязателен", ErrValidation)
	}
	if exceedsLength(nationalID, model.MaxNationalIDLength) {
		return nil, fmt.Errorf("%w: номер документа длиннее %d символов", ErrValidation, model.MaxNationalIDLength)
	}

	// 2. Кэш реестра
	rec, err := r.findRoster(ctx, nationalID)
	if err != nil {
		return nil, err
	}

	// 3. Локальный аккаунт
	acc, err := r.accounts.GetByNationalID(ctx, nationalID)
	switch {
	case err == nil:
		// 4. Существующий аккаунт
		return r.loginLocal(ctx, acc, credential, rec)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("поиск аккаунта: %w", err)
	}

	// 5. Создание из реестра
	if rec != nil {
		attrs := FromRoster(rec, nationalID, r.now())
		r.attachAvatar(ctx, &attrs)
		return r.createOrRecover(ctx, attrs, credential, model.SourceRoster, true)
	}

	// 6. Создание по данным справочника
	member, err := r.directory.FetchMember(ctx, nationalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: номер документа %s", ErrNotFound, nationalID)
	}

	attrs := FromRemote(member, nationalID, true, r.now())

	// Реестр мог обновиться, пока шёл запрос к справочнику
	rec, err = r.findRoster(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	attrs, _ = BackfillMerge(attrs, rec)

	r.attachAvatar(ctx, &attrs)
	return r.createOrRecover(ctx, attrs, credential, model.SourceRemote, rec != nil)
}

// findRoster возвращает запись реестра или nil, если её нет.
func (r *Resolver) findRoster(ctx context.Context, nationalID string) (*model.RosterRecord, error) {
	rec, err := r.roster.GetByNationalID(ctx, nationalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("поиск в реестре: %w", err)
	}
	return rec, nil
}

// loginLocal проверяет пароль существующего аккаунта и дозаполняет его из реестра.
// Ошибка сохранения дозаполненных полей не прерывает вход.
func (r *Resolver) loginLocal(ctx context.Context, acc *model.Account, credential string, rec *model.RosterRecord) (*LoginResult, error) {
	if !r.hasher.Verify(credential, acc.CredentialHash) {
		return nil, ErrInvalidCredential
	}

	if merged, changed := BackfillMerge(acc.AccountAttributes, rec); changed {
		previous := acc.AccountAttributes
		acc.AccountAttributes = merged
		if err := r.accounts.Update(ctx, acc); err != nil {
			acc.AccountAttributes = previous
			loginBackfillFailures.Inc()
			r.logger.Warn("Не удалось сохранить данные из реестра",
				slog.String("account_id", acc.ID),
				slog.String("error", err.Error()),
			)
		} else {
			r.logger.Info("Аккаунт дополнен данными реестра",
				slog.String("account_id", acc.ID),
			)
		}
	}

	return &LoginResult{Account: acc, Source: model.SourceLocal, RosterFound: rec != nil}, nil
}

// createOrRecover создаёт аккаунт. При конфликте UNIQUE(national_id)
// перечитывает аккаунт один раз и аутентифицирует по нему.
func (r *Resolver) createOrRecover(
	ctx context.Context,
	attrs model.AccountAttributes,
	credential string,
	source model.LoginSource,
	rosterFound bool,
) (*LoginResult, error) {
	hash, err := r.hasher.Hash(attrs.InitialSecret)
	if err != nil {
		return nil, fmt.Errorf("хэширование начального пароля: %w", err)
	}

	acc := &model.Account{AccountAttributes: attrs, CredentialHash: hash}
	acc.InitialSecret = ""

	err = r.accounts.Create(ctx, acc)
	if err == nil {
		r.logger.Info("Создан аккаунт участника",
			slog.String("account_id", acc.ID),
			slog.String("source", string(source)),
		)
		return &LoginResult{Account: acc, Source: source, RosterFound: rosterFound}, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("создание аккаунта: %w", err)
	}

	// Аккаунт создан параллельным входом: перечитываем и аутентифицируем
	existing, getErr := r.accounts.GetByNationalID(ctx, attrs.NationalID)
	if errors.Is(getErr, repository.ErrNotFound) {
		// Конфликт не по номеру документа (например, email уже занят)
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	if getErr != nil {
		return nil, fmt.Errorf("повторное чтение аккаунта: %w", getErr)
	}

	r.logger.Info("Аккаунт создан параллельным входом",
		slog.String("account_id", existing.ID),
	)
	if !r.hasher.Verify(credential, existing.CredentialHash) {
		return nil, ErrInvalidCredential
	}
	return &LoginResult{Account: existing, Source: model.SourceLocal, RosterFound: rosterFound}, nil
}

// attachAvatar скачивает фото участника и сохраняет его.
// Любая ошибка только логируется: вход без фото допустим.
func (r *Resolver) attachAvatar(ctx context.Context, attrs *model.AccountAttributes) {
	if r.avatars == nil || attrs.ExternalID == "" {
		return
	}

	data, err := r.directory.FetchPhoto(ctx, attrs.ExternalID)
	if err != nil {
		r.logger.Warn("Фото участника недоступно",
			slog.String("external_id", attrs.ExternalID),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(data) == 0 {
		return
	}

	path, err := r.avatars.Save(ctx, attrs.ExternalID, data)
	if err != nil {
		r.logger.Warn("Не удалось сохранить фото участника",
			slog.String("external_id", attrs.ExternalID),
			slog.String("error", err.Error()),
		)
		return
	}
	attrs.AvatarPath = path
}

// loginOutcome возвращает значение метки outcome для метрики входа.
func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
