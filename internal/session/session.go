// Пакет session — токены сессий участников (JWT HS256) и их отзыв.
// Токен выдаётся после успешного входа и отзывается при выходе.
// Отозванные jti хранятся в Redis или in-memory LRU.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Ошибки проверки токена.
var (
	// ErrInvalidToken — токен не прошёл проверку подписи, срока или формата.
	ErrInvalidToken = errors.New("недействительный токен сессии")
	// ErrRevoked — токен отозван.
	ErrRevoked = errors.New("токен сессии отозван")
)

// Claims — claims токена сессии участника.
// sub — идентификатор аккаунта, nid — номер документа.
type Claims struct {
	jwt.RegisteredClaims
	NationalID string `json:"nid"`
}

// Revocations — хранилище отозванных токенов.
type Revocations interface {
	// Revoke помечает jti отозванным на время ttl.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked сообщает, отозван ли jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Manager выпускает и проверяет токены сессий.
type Manager struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	revocations Revocations

	// now подменяется в тестах
	now func() time.Time
}

// NewManager создаёт менеджер сессий.
// revocations может быть nil — тогда отзыв не поддерживается.
func NewManager(secret []byte, issuer string, ttl time.Duration, revocations Revocations) *Manager {
	return &Manager{
		secret:      secret,
		issuer:      issuer,
		ttl:         ttl,
		revocations: revocations,
		now:         time.Now,
	}
}

// TTL возвращает время жизни выпускаемых токенов.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает подписанный токен для аккаунта.
func (m *Manager) Issue(accountID, nationalID string) (string, time.Time, error) {
	now := m.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		NationalID: nationalID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена сессии: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет токен и возвращает его claims.
// Ошибка проверки — ErrInvalidToken, отозванный токен — ErrRevoked.
func (m *Manager) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: отсутствует sub или jti", ErrInvalidToken)
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("проверка отзыва токена: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}
	return claims, nil
}

// Revoke отзывает токен до истечения его срока действия.
// Истёкший токен не сохраняется.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revocations == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	if err := m.revocations.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("отзыв токена %s: %w", claims.ID, err)
	}
	return nil
}
