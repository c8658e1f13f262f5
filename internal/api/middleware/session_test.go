package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/memberbridge/internal/session"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

// failingParser — парсер, у которого недоступно хранилище отзыва.
type failingParser struct{}

func (failingParser) Parse(context.Context, string) (*session.Claims, error) {
	return nil, errors.New("redis: connection refused")
}

func TestSessionAuth(t *testing.T) {
	revocations := session.NewMemoryRevocations(100, time.Hour)
	manager := session.NewManager([]byte(testSessionSecret), "memberbridge", time.Hour, revocations)

	valid, _, err := manager.Issue("acc-1", "30111222")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	revoked, _, err := manager.Issue("acc-2", "30111333")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	revokedClaims, err := manager.Parse(context.Background(), revoked)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := manager.Revoke(context.Background(), revokedClaims); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	var seen *session.Claims
	handler := SessionAuth(manager, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"действующий токен", "Bearer " + valid, http.StatusOK},
		{"нет заголовка", "", http.StatusUnauthorized},
		{"мусор", "Bearer xyz", http.StatusUnauthorized},
		{"отозванный токен", "Bearer " + revoked, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			rec := serveWithToken(handler, tt.header)
			if rec.Code != tt.want {
				t.Fatalf("ожидался статус %d, получен %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK {
				if seen == nil || seen.Subject != "acc-1" || seen.NationalID != "30111222" {
					t.Errorf("claims в контексте: %+v", seen)
				}
			}
		})
	}
}

func TestSessionAuth_StoreFailure(t *testing.T) {
	handler := SessionAuth(failingParser{}, testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler не должен вызываться")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", http.NoBody)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ожидался статус 500, получен %d", rec.Code)
	}
}

func TestSessionFromContext_Empty(t *testing.T) {
	if claims := SessionFromContext(context.Background()); claims != nil {
		t.Errorf("ожидался nil, получен %+v", claims)
	}
}
