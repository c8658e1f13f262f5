// Пакет avatar — хранилище фотографий участников.
// Фото скачивается из справочника при первом входе и сохраняется
// под внешним идентификатором участника: {prefix}/{id}.jpg.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidID — идентификатор непригоден для имени файла.
var ErrInvalidID = errors.New("недопустимый идентификатор аватара")

// Store сохраняет фотографию и возвращает путь, записываемый в аккаунт.
type Store interface {
	Save(ctx context.Context, externalID string, data []byte) (string, error)
}

// safeID — буквы, цифры, '-' и '_'.
var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// objectName возвращает имя файла {id}.jpg. Идентификатор с любыми
// другими символами отклоняется целиком: разные id не должны давать одно имя.
func objectName(externalID string) (string, error) {
	if !safeID.MatchString(externalID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, externalID)
	}
	return externalID + ".jpg", nil
}
