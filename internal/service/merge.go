// merge.go — маппинг внешних данных в поля аккаунта и дозаполнение
// пустых полей из реестра.
//
// Приоритет источников:
//   - имя: реестр (full_name) > справочник ("Фамилия, Имя") > номер документа
//   - external_id / barcode: реестр > справочник > пусто
//
// Поле перезаписывается только если оно пустое (для имени — пустое
// или равно номеру документа), поэтому повторное слияние ничего не меняет.
package service

import (
	"strings"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// BackfillMerge дозаполняет пустые поля {имя, external_id, barcode}
// из записи реестра. Возвращает обновлённые атрибуты и признак изменения.
// Исходное значение attrs не модифицируется.
func BackfillMerge(attrs model.AccountAttributes, rec *model.RosterRecord) (model.AccountAttributes, bool) {
	if rec == nil {
		return attrs, false
	}

	changed := false

	if attrs.HasPlaceholderName() && rec.FullName != "" && attrs.DisplayName != rec.FullName {
		attrs.DisplayName = rec.FullName
		changed = true
	}
	if attrs.ExternalID == "" && rec.ExternalID != "" {
		attrs.ExternalID = rec.ExternalID
		changed = true
	}
	if attrs.Barcode == "" && rec.Barcode != "" {
		attrs.Barcode = rec.Barcode
		changed = true
	}

	return attrs, changed
}

// FromRoster строит атрибуты нового аккаунта по записи реестра.
// Начальный пароль — номер документа.
func FromRoster(rec *model.RosterRecord, nationalID string, now time.Time) model.AccountAttributes {
	name := rec.FullName
	if name == "" {
		name = nationalID
	}

	return model.AccountAttributes{
		NationalID:       nationalID,
		DisplayName:      name,
		ExternalID:       rec.ExternalID,
		Barcode:          rec.Barcode,
		LastRemoteSyncAt: &now,
		InitialSecret:    nationalID,
	}
}

// FromRemote строит атрибуты аккаунта по ответу справочника.
// isNew = true задаёт начальный пароль (номер документа); при обновлении
// существующего аккаунта пароль не трогается.
func FromRemote(m *model.DirectoryMember, nationalID string, isNew bool, now time.Time) model.AccountAttributes {
	name := truncateRunes(remoteDisplayName(m.Surname, m.GivenName), model.MaxFullNameLength)
	if name == "" {
		name = nationalID
	}

	externalID := m.ID
	if externalID == "" {
		externalID = m.AltID
	}
	// Неуместимые идентификаторы не сохраняются: их дозаполнит реестр
	if exceedsLength(externalID, model.MaxExternalIDLength) {
		externalID = ""
	}
	barcode := m.Barcode
	if exceedsLength(barcode, model.MaxBarcodeLength) {
		barcode = ""
	}
	email := m.Email
	if exceedsLength(email, maxEmailLength) {
		email = ""
	}

	syncedAt := now
	if m.UpdatedAt != nil {
		syncedAt = *m.UpdatedAt
	}

	attrs := model.AccountAttributes{
		NationalID:         nationalID,
		DisplayName:        name,
		Email:              email,
		ExternalID:         externalID,
		Barcode:            barcode,
		GivenName:          truncateRunes(m.GivenName, 255),
		Surname:            truncateRunes(m.Surname, 255),
		Nationality:        truncateRunes(m.Nationality, 128),
		BirthDate:          m.BirthDate,
		Address:            truncateRunes(m.Address, 255),
		Locality:           truncateRunes(m.Locality, 255),
		Phone:              truncateRunes(m.Phone, 64),
		Mobile:             truncateRunes(m.Mobile, 64),
		MembershipCategory: truncateRunes(m.Category, 128),
		MembershipStatus:   truncateRunes(m.Status, 128),
		LastRemoteSyncAt:   &syncedAt,
	}
	if isNew {
		attrs.InitialSecret = nationalID
	}
	return attrs
}

// remoteDisplayName собирает "Фамилия, Имя", если есть хотя бы одна часть.
// Лишние пробелы и запятые по краям убираются: "Oliveto, " → "Oliveto".
func remoteDisplayName(surname, givenName string) string {
	surname = strings.TrimSpace(surname)
	givenName = strings.TrimSpace(givenName)
	if surname == "" && givenName == "" {
		return ""
	}
	return strings.Trim(surname+", "+givenName, " ,")
}
