package service

import (
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

func TestBackfillMerge(t *testing.T) {
	rec := &model.RosterRecord{NationalID: "123", FullName: "DOE JANE", ExternalID: "77", Barcode: "0077"}

	tests := []struct {
		name        string
		attrs       model.AccountAttributes
		wantName    string
		wantExtID   string
		wantBarcode string
		wantChanged bool
	}{
		{
			name:        "заглушка имени заменяется",
			attrs:       model.AccountAttributes{NationalID: "123", DisplayName: "123"},
			wantName:    "DOE JANE",
			wantExtID:   "77",
			wantBarcode: "0077",
			wantChanged: true,
		},
		{
			name:        "пустое имя заменяется",
			attrs:       model.AccountAttributes{NationalID: "123"},
			wantName:    "DOE JANE",
			wantExtID:   "77",
			wantBarcode: "0077",
			wantChanged: true,
		},
		{
			name:        "заполненные поля не перезаписываются",
			attrs:       model.AccountAttributes{NationalID: "123", DisplayName: "Jane Doe", ExternalID: "1", Barcode: "B"},
			wantName:    "Jane Doe",
			wantExtID:   "1",
			wantBarcode: "B",
			wantChanged: false,
		},
		{
			name:        "дозаполняется только пустое поле",
			attrs:       model.AccountAttributes{NationalID: "123", DisplayName: "Jane Doe", ExternalID: "1"},
			wantName:    "Jane Doe",
			wantExtID:   "1",
			wantBarcode: "0077",
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := BackfillMerge(tt.attrs, rec)
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, ожидается %v", changed, tt.wantChanged)
			}
			if got.DisplayName != tt.wantName || got.ExternalID != tt.wantExtID || got.Barcode != tt.wantBarcode {
				t.Errorf("результат = %q/%q/%q, ожидается %q/%q/%q",
					got.DisplayName, got.ExternalID, got.Barcode, tt.wantName, tt.wantExtID, tt.wantBarcode)
			}
		})
	}
}

func TestBackfillMerge_Idempotent(t *testing.T) {
	rec := &model.RosterRecord{NationalID: "123", FullName: "DOE JANE", ExternalID: "77", Barcode: "0077"}
	attrs := model.AccountAttributes{NationalID: "123", DisplayName: "123"}

	first, changed := BackfillMerge(attrs, rec)
	if !changed {
		t.Fatal("первое слияние должно изменить аккаунт")
	}
	second, changed := BackfillMerge(first, rec)
	if changed {
		t.Error("повторное слияние с той же записью изменило аккаунт")
	}
	if second != first {
		t.Errorf("повторное слияние изменило поля: %+v → %+v", first, second)
	}

	// Другая запись реестра не перезаписывает уже заполненное
	other := &model.RosterRecord{NationalID: "123", FullName: "ROE RICHARD", ExternalID: "88", Barcode: "0088"}
	third, changed := BackfillMerge(second, other)
	if changed || third.DisplayName != "DOE JANE" {
		t.Errorf("другая запись перезаписала поля: %+v", third)
	}
}

func TestBackfillMerge_NilRecord(t *testing.T) {
	attrs := model.AccountAttributes{NationalID: "123"}
	if _, changed := BackfillMerge(attrs, nil); changed {
		t.Error("слияние с nil изменило аккаунт")
	}
}

// Пустые поля реестра не затирают и не заполняют ничего.
func TestBackfillMerge_EmptySource(t *testing.T) {
	attrs := model.AccountAttributes{NationalID: "123", DisplayName: "123"}
	got, changed := BackfillMerge(attrs, &model.RosterRecord{NationalID: "123"})
	if changed || got.DisplayName != "123" {
		t.Errorf("пустая запись реестра изменила аккаунт: %+v", got)
	}
}

func TestFromRoster(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	attrs := FromRoster(&model.RosterRecord{FullName: "DOE JANE", ExternalID: "77", Barcode: "20424621630001234"}, "123", now)
	if attrs.DisplayName != "DOE JANE" || attrs.ExternalID != "77" || attrs.Barcode != "20424621630001234" {
		t.Errorf("атрибуты = %+v", attrs)
	}
	if attrs.InitialSecret != "123" {
		t.Errorf("InitialSecret = %q, ожидается номер документа", attrs.InitialSecret)
	}
	if attrs.Email != "" {
		t.Errorf("Email = %q, ожидается пусто", attrs.Email)
	}
	if attrs.LastRemoteSyncAt == nil || !attrs.LastRemoteSyncAt.Equal(now) {
		t.Errorf("LastRemoteSyncAt = %v, ожидается %v", attrs.LastRemoteSyncAt, now)
	}

	noName := FromRoster(&model.RosterRecord{}, "123", now)
	if noName.DisplayName != "123" {
		t.Errorf("DisplayName без имени в реестре = %q, ожидается номер документа", noName.DisplayName)
	}
}

func TestFromRemote(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	m := &model.DirectoryMember{
		ID: "500", AltID: "A-1", GivenName: "Julieta", Surname: "Oliveto",
		Email: "j@example.test", Category: "Activo", Status: "1", Barcode: "0500",
		UpdatedAt: &updated,
	}
	attrs := FromRemote(m, "42462163", true, now)

	if attrs.DisplayName != "Oliveto, Julieta" {
		t.Errorf("DisplayName = %q, ожидается \"Oliveto, Julieta\"", attrs.DisplayName)
	}
	if attrs.ExternalID != "500" {
		t.Errorf("ExternalID = %q, ожидается 500", attrs.ExternalID)
	}
	if attrs.InitialSecret != "42462163" {
		t.Errorf("InitialSecret = %q", attrs.InitialSecret)
	}
	if attrs.MembershipCategory != "Activo" || attrs.MembershipStatus != "1" || attrs.Email != "j@example.test" {
		t.Errorf("профиль = %+v", attrs)
	}
	if attrs.LastRemoteSyncAt == nil || !attrs.LastRemoteSyncAt.Equal(updated) {
		t.Errorf("LastRemoteSyncAt = %v, ожидается update_ts", attrs.LastRemoteSyncAt)
	}

	refresh := FromRemote(m, "42462163", false, now)
	if refresh.InitialSecret != "" {
		t.Error("при обновлении существующего аккаунта пароль задаваться не должен")
	}
}

func TestFromRemote_NameAndIDFallbacks(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		member   model.DirectoryMember
		wantName string
		wantID   string
	}{
		{"только фамилия", model.DirectoryMember{Surname: "Oliveto", AltID: "A-1"}, "Oliveto", "A-1"},
		{"только имя", model.DirectoryMember{GivenName: "Julieta"}, "Julieta", ""},
		{"без имени", model.DirectoryMember{ID: "9"}, "42462163", "9"},
		{"пробелы", model.DirectoryMember{Surname: "  ", GivenName: " Julieta "}, "Julieta", ""},
		{"длинный идентификатор", model.DirectoryMember{Surname: "Oliveto", ID: strings.Repeat("9", model.MaxExternalIDLength+1)}, "Oliveto", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := FromRemote(&tt.member, "42462163", true, now)
			if attrs.DisplayName != tt.wantName {
				t.Errorf("DisplayName = %q, ожидается %q", attrs.DisplayName, tt.wantName)
			}
			if attrs.ExternalID != tt.wantID {
				t.Errorf("ExternalID = %q, ожидается %q", attrs.ExternalID, tt.wantID)
			}
			if attrs.LastRemoteSyncAt == nil || !attrs.LastRemoteSyncAt.Equal(now) {
				t.Errorf("LastRemoteSyncAt = %v, ожидается now", attrs.LastRemoteSyncAt)
			}
		})
	}
}

func TestFromRemote_OverlongBarcode(t *testing.T) {
	long := model.DirectoryMember{Surname: "Oliveto", Barcode: strings.Repeat("5", model.MaxBarcodeLength+1)}
	if attrs := FromRemote(&long, "12345678901234567890", true, time.Now()); attrs.Barcode != "" {
		t.Errorf("Barcode = %.20q…, ожидается пустой для неуместимого значения", attrs.Barcode)
	}

	if attrs := FromRemote(&model.DirectoryMember{
		Surname: "Oliveto", Email: strings.Repeat("x", 250) + "@example.test", Phone: strings.Repeat("4", 80),
	}, "1", true, time.Now()); attrs.Email != "" || len(attrs.Phone) != 64 {
		t.Errorf("Email/Phone = %q/%d, ожидается пустой email и телефон из 64 символов", attrs.Email, len(attrs.Phone))
	}

	fits := model.DirectoryMember{Surname: "Oliveto", Barcode: strings.Repeat("5", 200)}
	attrs := FromRemote(&fits, "12345678901234567890", true, time.Now())
	if attrs.Barcode != fits.Barcode || attrs.NationalID != "12345678901234567890" {
		t.Errorf("Barcode/NationalID = %.20q/%q", attrs.Barcode, attrs.NationalID)
	}
}
