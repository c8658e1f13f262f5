package model

import "time"

// DirectoryMember — запись о члене клуба из внешнего справочника.
// Наименее надёжный источник: набор полей у разных записей разный.
type DirectoryMember struct {
	// ID — основной идентификатор (поле Id)
	ID string
	// AltID — запасной идентификатор (поле socio_n)
	AltID       string
	NationalID  string
	GivenName   string
	Surname     string
	Email       string
	Nationality string
	// BirthDate — дата рождения, если удалось разобрать
	BirthDate *time.Time
	Address   string
	Locality  string
	Phone     string
	Mobile    string
	Category  string
	Barcode   string
	Status    string
	// UpdatedAt — метка актуальности записи в справочнике (update_ts)
	UpdatedAt *time.Time
}

// PoolToken — токен доступа к системе бассейна.
type PoolToken struct {
	Token     string
	ExpiresIn time.Duration
}
