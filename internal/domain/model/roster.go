// Пакет model — доменные сущности memberbridge.
package model

import (
	"encoding/json"
	"time"
)

// Пределы длины полей в символах (совпадают с колонками БД).
const (
	MaxNationalIDLength = 32
	MaxExternalIDLength = 64
	MaxBarcodeLength    = 255
	MaxFullNameLength   = 255
)

// RosterRecord — запись локального кэша реестра членов клуба.
// Хранится в таблице members_roster, ключ — NationalID.
// Пустая строка в текстовых полях означает отсутствие значения.
type RosterRecord struct {
	// NationalID — номер документа (уникальный ключ, обязателен)
	NationalID string
	// ExternalID — идентификатор участника во внешнем справочнике
	ExternalID string
	// FullName — "ФАМИЛИЯ ИМЕНА"
	FullName string
	// Barcode — штрихкод, всегда текст (значения не помещаются в int64)
	Barcode string
	// Balance — баланс счёта
	Balance *float64
	// RiskLevel — код «светофора» задолженности
	RiskLevel *int
	// LastUnpaidPeriod — последний неоплаченный период
	LastUnpaidPeriod *int
	// FullAccess — флаг полного доступа (nil / 0 / 1)
	FullAccess *int
	// ControlFlags — флаги контроля доступа
	ControlFlags ControlFlags
	// RawSnapshot — исходная запись справочника целиком (компактный JSON)
	RawSnapshot json.RawMessage
	// CreatedAt — время первой загрузки записи
	CreatedAt time.Time
	// UpdatedAt — время последнего фактического изменения
	UpdatedAt time.Time
}
