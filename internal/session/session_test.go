package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// newTestManager создаёт менеджер с фиксированным временем.
func newTestManager(now time.Time) (*Manager, *MemoryRevocations) {
	rev := NewMemoryRevocations(100, time.Hour)
	m := NewManager(testSecret, "memberbridge", time.Hour, rev)
	m.now = func() time.Time { return now }
	return m, rev
}

func TestManager_IssueParse(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(now)

	token, expiresAt, err := m.Issue("acc-1", "42462163")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, ожидается %v", expiresAt, now.Add(time.Hour))
	}

	claims, err := m.Parse(context.Background(), token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "acc-1" || claims.NationalID != "42462163" {
		t.Errorf("claims = sub %q nid %q", claims.Subject, claims.NationalID)
	}
	if claims.ID == "" {
		t.Error("jti пустой")
	}
}

func TestManager_ParseRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(now)
	token, _, _ := m.Issue("acc-1", "1")

	// Истёкший токен
	expired, _ := newTestManager(now.Add(2 * time.Hour))
	if _, err := expired.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("истёкший токен: %v, ожидается ErrInvalidToken", err)
	}

	// Другой секрет
	other := NewManager([]byte("ffffffffffffffffffffffffffffffff"), "memberbridge", time.Hour, nil)
	other.now = m.now
	if _, err := other.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("чужая подпись: %v, ожидается ErrInvalidToken", err)
	}

	// Другой issuer
	foreign := NewManager(testSecret, "someone-else", time.Hour, nil)
	foreign.now = m.now
	if _, err := foreign.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("чужой issuer: %v, ожидается ErrInvalidToken", err)
	}

	// Алгоритм none
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "acc-1", "jti": "x", "iss": "memberbridge", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := m.Parse(context.Background(), unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=none: %v, ожидается ErrInvalidToken", err)
	}

	if _, err := m.Parse(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("мусор: %v, ожидается ErrInvalidToken", err)
	}
}

func TestManager_Revoke(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(now)
	ctx := context.Background()

	token, _, _ := m.Issue("acc-1", "1")
	claims, err := m.Parse(ctx, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := m.Revoke(ctx, claims); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.Parse(ctx, token); !errors.Is(err, ErrRevoked) {
		t.Errorf("после отзыва: %v, ожидается ErrRevoked", err)
	}

	// Другие токены того же аккаунта не затронуты
	second, _, _ := m.Issue("acc-1", "1")
	if _, err := m.Parse(ctx, second); err != nil {
		t.Errorf("второй токен: %v", err)
	}
}

func TestMemoryRevocations(t *testing.T) {
	rev := NewMemoryRevocations(2, time.Hour)
	ctx := context.Background()

	for _, jti := range []string{"a", "b"} {
		if err := rev.Revoke(ctx, jti, time.Minute); err != nil {
			t.Fatalf("Revoke(%s): %v", jti, err)
		}
	}

	// Переполнение: новый отзыв отклоняется, старые записи не вытесняются
	if err := rev.Revoke(ctx, "c", time.Minute); !errors.Is(err, ErrRevocationListFull) {
		t.Errorf("Revoke(c) = %v, ожидается ErrRevocationListFull", err)
	}
	for _, jti := range []string{"a", "b"} {
		if revoked, _ := rev.IsRevoked(ctx, jti); !revoked {
			t.Errorf("%s ожидается отозванным", jti)
		}
	}
	if revoked, _ := rev.IsRevoked(ctx, "c"); revoked {
		t.Error("c не должен попасть в список")
	}

	// Повторный отзыв существующей записи не требует места
	if err := rev.Revoke(ctx, "a", time.Minute); err != nil {
		t.Errorf("повторный Revoke(a) = %v", err)
	}
}

// Выход из сессии при заполненном списке не возвращает к жизни
// ранее отозванные токены.
func TestManager_RevokeWhenListFull(t *testing.T) {
	now := time.Now()
	rev := NewMemoryRevocations(2, time.Hour)
	m := NewManager(testSecret, "memberbridge", time.Hour, rev)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	tokens := make([]string, 3)
	for i := range tokens {
		tokens[i], _, _ = m.Issue("acc-1", "1")
	}
	for i, token := range tokens {
		claims, err := m.Parse(ctx, token)
		if err != nil {
			t.Fatalf("Parse #%d: %v", i, err)
		}
		err = m.Revoke(ctx, claims)
		if i < 2 && err != nil {
			t.Fatalf("Revoke #%d: %v", i, err)
		}
		if i == 2 && !errors.Is(err, ErrRevocationListFull) {
			t.Errorf("Revoke #2 = %v, ожидается ErrRevocationListFull", err)
		}
	}

	if _, err := m.Parse(ctx, tokens[0]); !errors.Is(err, ErrRevoked) {
		t.Errorf("первый токен: %v, ожидается ErrRevoked", err)
	}
}

func TestMemoryRevocations_FreesSlotAfterExpiry(t *testing.T) {
	rev := NewMemoryRevocations(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := rev.Revoke(ctx, "a", 0); err != nil {
		t.Fatalf("Revoke(a): %v", err)
	}
	if err := rev.Revoke(ctx, "b", 0); !errors.Is(err, ErrRevocationListFull) {
		t.Fatalf("Revoke(b) = %v, ожидается ErrRevocationListFull", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := rev.Revoke(ctx, "b", 0)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("место не освободилось после истечения TTL: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if revoked, _ := rev.IsRevoked(ctx, "b"); !revoked {
		t.Error("b ожидается отозванным")
	}
}
