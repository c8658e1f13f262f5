// Пакет server — HTTP-сервер memberbridge с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/memberbridge/internal/api/errors"
	"github.com/bigkaa/memberbridge/internal/api/handlers"
	"github.com/bigkaa/memberbridge/internal/api/middleware"
	"github.com/bigkaa/memberbridge/internal/config"
)

// Routes — зависимости маршрутизатора.
type Routes struct {
	// Handler — обработчики API.
	Handler *handlers.APIHandler
	// Sessions — проверка токенов сессий участников.
	Sessions middleware.SessionParser
	// AdminAuth — проверка токенов администраторов (nil — admin API отключён).
	AdminAuth *middleware.JWTAuth
	// AdminRole — роль realm, необходимая для admin API.
	AdminRole string
	// Validator — валидация запросов по OpenAPI (nil — без валидации).
	Validator func(http.Handler) http.Handler
}

// Server — HTTP-сервер memberbridge.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, routes),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Синхронная синхронизация реестра может идти долго
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор.
func NewRouter(logger *slog.Logger, routes Routes) http.Handler {
	h := routes.Handler
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if routes.Validator != nil {
		router.Use(routes.Validator)
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	// Health и metrics проверяются Kubernetes напрямую
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Публичные endpoints
		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)

		// Сессия участника
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(routes.Sessions, logger))
			r.Get("/auth/me", h.GetCurrentAccount)
			r.Post("/auth/logout", h.Logout)
			r.Post("/auth/change-password", h.ChangePassword)
			r.Post("/pool/token", h.IssuePoolToken)
		})

		// Администрирование реестра
		if routes.AdminAuth != nil {
			r.Group(func(r chi.Router) {
				r.Use(routes.AdminAuth.Middleware())
				r.Use(middleware.RequireRole(routes.AdminRole))
				r.Post("/roster/sync", h.SyncRoster)
				r.Get("/roster/status", h.GetRosterStatus)
				r.Get("/roster/{national_id}", h.GetRosterRecord)
			})
		}
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
