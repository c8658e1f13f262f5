package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrRevocationListFull — в in-memory списке нет места до истечения старых записей.
var ErrRevocationListFull = errors.New("список отозванных токенов переполнен")

// Prometheus-метрики in-memory списка отзыва.
var (
	revocationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_revocation_cache_hits_total",
		Help: "Количество проверок, нашедших токен в списке отозванных.",
	})
	revocationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_revocation_cache_misses_total",
		Help: "Количество проверок, не нашедших токен в списке отозванных.",
	})
	revocationRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_revocation_rejected_total",
		Help: "Количество отказов в отзыве токена из-за переполнения списка.",
	})
)

// MemoryRevocations — in-memory список отозванных токенов (per-instance).
// Используется, когда Redis не настроен. TTL записи общий и равен
// времени жизни сессии, поэтому запись живёт не меньше самого токена.
// Записи удаляются только по истечении TTL: при заполнении списка
// новый отзыв отклоняется с ErrRevocationListFull.
type MemoryRevocations struct {
	mu      sync.Mutex
	maxSize int
	cache   *expirable.LRU[string, struct{}]
}

// NewMemoryRevocations создаёт список на maxSize записей с TTL ttl.
func NewMemoryRevocations(maxSize int, ttl time.Duration) *MemoryRevocations {
	return &MemoryRevocations{
		maxSize: maxSize,
		cache:   expirable.NewLRU[string, struct{}](maxSize, nil, ttl),
	}
}

// Revoke добавляет jti в список. ttl игнорируется — используется общий TTL.
// Повторный отзыв уже отозванного jti продлевает запись и не требует места.
func (m *MemoryRevocations) Revoke(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cache.Contains(jti) && m.maxSize > 0 && m.cache.Len() >= m.maxSize {
		revocationRejected.Inc()
		return ErrRevocationListFull
	}
	m.cache.Add(jti, struct{}{})
	return nil
}

// IsRevoked проверяет наличие jti в списке.
func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	if _, ok := m.cache.Get(jti); ok {
		revocationCacheHits.Inc()
		return true, nil
	}
	revocationCacheMisses.Inc()
	return false, nil
}
