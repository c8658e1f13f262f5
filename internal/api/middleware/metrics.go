// metrics.go — Prometheus HTTP метрики memberbridge.
// Регистрирует метрики: mb_http_requests_total, mb_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mb_http_requests_total",
			Help: "Общее количество HTTP-запросов к memberbridge",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mb_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к memberbridge в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Номер документа в пути заменяется на шаблон
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// statusRecorder — обёртка для перехвата статус-кода и размера ответа.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownPaths — статические пути API.
var knownPaths = map[string]struct{}{
	"/health/live":                 {},
	"/health/ready":                {},
	"/metrics":                     {},
	"/api/v1/auth/login":           {},
	"/api/v1/auth/register":        {},
	"/api/v1/auth/me":              {},
	"/api/v1/auth/logout":          {},
	"/api/v1/auth/change-password": {},
	"/api/v1/pool/token":           {},
	"/api/v1/roster/sync":          {},
	"/api/v1/roster/status":        {},
}

// normalizePath приводит путь к шаблону маршрута для лейблов метрик.
// /api/v1/roster/30111222 → /api/v1/roster/{national_id}
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}

	const rosterPrefix = "/api/v1/roster/"
	if rest, ok := strings.CutPrefix(path, rosterPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
		return rosterPrefix + "{national_id}"
	}

	return "other"
}
