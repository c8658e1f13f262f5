// accounts.go — саморегистрация не-членов клуба, смена пароля и профиль.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/repository"
)

// Ограничения полей регистрации.
const (
	maxNameLength     = 255
	maxEmailLength    = 255
	minPasswordLength = 6
	// maxPasswordBytes — предел bcrypt, считается в байтах UTF-8.
	maxPasswordBytes = 72
)

// RegisterInput — данные саморегистрации.
type RegisterInput struct {
	NationalID           string
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// AccountService — операции с аккаунтами вне входа.
type AccountService struct {
	accounts repository.AccountRepository
	roster   repository.RosterRepository
	hasher   CredentialHasher
	logger   *slog.Logger
}

// NewAccountService создаёт сервис аккаунтов.
func NewAccountService(
	accounts repository.AccountRepository,
	roster repository.RosterRepository,
	hasher CredentialHasher,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		roster:   roster,
		hasher:   hasher,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// Register регистрирует не-члена клуба.
// Номер документа из реестра зарегистрировать нельзя: член клуба входит
// с начальным паролем, равным номеру документа.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	nationalID := strings.TrimSpace(in.NationalID)
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if err := validateRegistration(nationalID, name, email, in.Password, in.PasswordConfirmation); err != nil {
		return nil, err
	}

	isMember, err := s.roster.Exists(ctx, nationalID)
	if err != nil {
		return nil, fmt.Errorf("проверка реестра: %w", err)
	}
	if isMember {
		return nil, fmt.Errorf("%w: номер документа принадлежит члену клуба, войдите с номером документа в качестве начального пароля", ErrValidation)
	}

	if _, err := s.accounts.GetByNationalID(ctx, nationalID); err == nil {
		return nil, fmt.Errorf("%w: номер документа уже зарегистрирован", ErrConflict)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("поиск аккаунта: %w", err)
	}

	taken, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("проверка email: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: email уже зарегистрирован", ErrConflict)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	acc := &model.Account{
		AccountAttributes: model.AccountAttributes{
			NationalID:  nationalID,
			DisplayName: name,
			Email:       email,
		},
		CredentialHash: hash,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, fmt.Errorf("создание аккаунта: %w", err)
	}

	s.logger.Info("Зарегистрирован аккаунт", slog.String("account_id", acc.ID))
	return acc, nil
}

// ChangePassword заменяет пароль после проверки текущего.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, current, newPassword, confirmation string) error {
	if current == "" {
		return fmt.Errorf("%w: текущий пароль обязателен", ErrValidation)
	}
	if err := validatePassword(newPassword, confirmation); err != nil {
		return err
	}

	acc, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, acc.CredentialHash) {
		return ErrInvalidCredential
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("хэширование пароля: %w", err)
	}
	if err := s.accounts.UpdateCredential(ctx, acc.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("смена пароля: %w", err)
	}

	s.logger.Info("Пароль изменён", slog.String("account_id", acc.ID))
	return nil
}

// Get возвращает аккаунт по ID.
func (s *AccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("получение аккаунта: %w", err)
	}
	return acc, nil
}

// --- Валидация ---

func validateRegistration(nationalID, name, email, password, confirmation string) error {
	if nationalID == "" {
		return fmt.Errorf("%w: номер документа обязателен", ErrValidation)
	}
	if exceedsLength(nationalID, model.MaxNationalIDLength) {
		return fmt.Errorf("%w: номер документа длиннее %d символов", ErrValidation, model.MaxNationalIDLength)
	}
	if name == "" {
		return fmt.Errorf("%w: имя обязательно", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: имя длиннее %d символов", ErrValidation, maxNameLength)
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	return validatePassword(password, confirmation)
}

// validateEmail принимает только голый адрес (без отображаемого имени).
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email обязателен", ErrValidation)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: email длиннее %d символов", ErrValidation, maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	return nil
}

func validatePassword(password, confirmation string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return fmt.Errorf("%w: пароль короче %d символов", ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: пароль длиннее %d байт", ErrValidation, maxPasswordBytes)
	}
	if password != confirmation {
		return fmt.Errorf("%w: пароль и подтверждение не совпадают", ErrValidation)
	}
	return nil
}
