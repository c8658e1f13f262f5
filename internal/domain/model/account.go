package model

import "time"

// LoginSource — источник, из которого был получен аккаунт при входе.
type LoginSource string

const (
	// SourceLocal — аккаунт уже существовал локально.
	SourceLocal LoginSource = "local"
	// SourceRoster — аккаунт создан из кэша реестра.
	SourceRoster LoginSource = "roster"
	// SourceRemote — аккаунт создан по данным внешнего справочника.
	SourceRemote LoginSource = "remote"
	// SourceRegister — аккаунт зарегистрирован самостоятельно (не член клуба).
	SourceRegister LoginSource = "register"
)

// AccountAttributes — профильные поля локального аккаунта.
// Заполняются маппингом из реестра или справочника.
// Пустая строка означает отсутствие значения.
type AccountAttributes struct {
	NationalID  string
	DisplayName string
	Email       string

	ExternalID string
	Barcode    string

	GivenName          string
	Surname            string
	Nationality        string
	BirthDate          *time.Time
	Address            string
	Locality           string
	Phone              string
	Mobile             string
	MembershipCategory string
	MembershipStatus   string

	// LastRemoteSyncAt — время актуальности данных из внешнего источника
	LastRemoteSyncAt *time.Time
	// AvatarPath — путь к сохранённой фотографии
	AvatarPath string

	// InitialSecret — открытый начальный пароль для нового аккаунта.
	// Заполняется только маппингом при создании и в БД не хранится.
	InitialSecret string
}

// Account — локальный аккаунт (таблица accounts).
type Account struct {
	// ID — UUID аккаунта
	ID string
	AccountAttributes
	// CredentialHash — bcrypt-хэш пароля
	CredentialHash string
	// IsAdmin — административный флаг (для саморегистрации всегда false)
	IsAdmin bool
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// HasPlaceholderName сообщает, что имя ещё не обогащено:
// пустое или совпадает с номером документа.
func (a *AccountAttributes) HasPlaceholderName() bool {
	return a.DisplayName == "" || a.DisplayName == a.NationalID
}
