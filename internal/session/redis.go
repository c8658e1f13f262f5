package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// revokedKeyPrefix — префикс ключей отозванных токенов в Redis.
const revokedKeyPrefix = "mb:revoked:"

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("подключение к Redis %s: %w", addr, err)
	}
	return client, nil
}

// RedisRevocations — список отозванных токенов в Redis, общий для всех
// экземпляров сервиса. Каждый ключ живёт до истечения срока токена.
type RedisRevocations struct {
	client *goredis.Client
}

// NewRedisRevocations создаёт хранилище отзыва поверх клиента Redis.
func NewRedisRevocations(client *goredis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

// Revoke сохраняет jti с TTL.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err()
}

// IsRevoked проверяет наличие ключа jti.
func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedKeyPrefix+jti).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckReady проверяет доступность Redis через PING.
// Возвращает ("ok", "") или ("fail", описание ошибки).
func (r *RedisRevocations) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", ""
}
