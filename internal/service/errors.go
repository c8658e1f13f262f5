// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — некорректные входные данные (например, пустой номер документа).
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidCredential — аккаунт существует, но пароль неверен.
	ErrInvalidCredential = errors.New("неверные учётные данные")
	// ErrNotFound — номер документа не найден ни локально, ни в реестре, ни в справочнике.
	ErrNotFound = errors.New("не найдено")
	// ErrUpstreamUnavailable — внешний справочник не ответил.
	ErrUpstreamUnavailable = errors.New("внешний справочник недоступен")
	// ErrConflict — конфликт уникальности при создании аккаунта.
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrSyncInProgress — синхронизация реестра уже выполняется.
	ErrSyncInProgress = errors.New("синхронизация реестра уже выполняется")
)
