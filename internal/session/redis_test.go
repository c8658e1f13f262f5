package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционный тест: требует Docker.
// Запуск: TEST_INTEGRATION=1 go test ./internal/session/...
func TestRedisRevocations(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION не задан, пропускаем интеграционный тест")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Запуск Redis-контейнера: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Остановка контейнера: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}

	client, err := NewRedisClient(ctx, addr, "")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	rev := NewRedisRevocations(client)

	if status, msg := rev.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %s (%s), ожидается ok", status, msg)
	}

	revoked, err := rev.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("IsRevoked до отзыва = %v, %v", revoked, err)
	}

	if err := rev.Revoke(ctx, "jti-1", time.Second); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := rev.IsRevoked(ctx, "jti-1"); !revoked {
		t.Error("IsRevoked после отзыва = false")
	}

	ttl, err := client.TTL(ctx, revokedKeyPrefix+"jti-1").Result()
	if err != nil || ttl <= 0 || ttl > time.Second {
		t.Errorf("TTL ключа = %v, %v; ожидается (0, 1s]", ttl, err)
	}
}
