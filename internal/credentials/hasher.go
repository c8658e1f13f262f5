// Пакет credentials — хэширование и проверка секретов участников.
package credentials

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptySecret — попытка захэшировать пустой секрет.
	ErrEmptySecret = errors.New("пустой секрет")
	// ErrSecretTooLong — секрет длиннее MaxSecretBytes.
	ErrSecretTooLong = errors.New("секрет длиннее 72 байт")
)

// MaxSecretBytes — максимальная длина секрета, которую принимает bcrypt.
const MaxSecretBytes = 72

// BcryptHasher хэширует секреты алгоритмом bcrypt.
// Хэш самоописывающий (алгоритм, cost и соль внутри), поэтому проверка
// работает и для хэшей, созданных с другим cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт хэшер. cost = 0 — bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash возвращает bcrypt-хэш секрета.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrSecretTooLong
	}
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// Verify сравнивает секрет с сохранённым хэшем.
// Пустой или повреждённый хэш никогда не совпадает.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
