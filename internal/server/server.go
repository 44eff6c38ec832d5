// Пакет server — HTTP-сервер Container Manager с graceful shutdown.
// Без TLS — TLS termination на внешнем прокси.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/container-manager/internal/api/handlers"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/config"
	"github.com/arturkryukov/container-manager/internal/domain/rbac"
)

// Server — HTTP-сервер Container Manager.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Routes — зависимости маршрутизатора.
type Routes struct {
	// API — обработчики всех endpoints
	API *handlers.APIHandler
	// Auth — проверка Bearer-токена
	Auth *middleware.Authenticator
	// LoginLimiter — ограничение /auth/* по IP (nil — без ограничения)
	LoginLimiter *middleware.IPRateLimiter
	// OpenAPI — отдача документа /openapi.json (nil — маршрут не регистрируется)
	OpenAPI http.Handler
}

// NewRouter собирает chi-маршрутизатор.
// Публичные: /auth/*, /health/*, /metrics, /openapi.json.
// Остальные требуют токен, часть из них — роль Admin.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	h := routes.API
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	if routes.OpenAPI != nil {
		router.Method(http.MethodGet, "/openapi.json", routes.OpenAPI)
	}

	router.Route("/auth", func(r chi.Router) {
		if routes.LoginLimiter != nil {
			r.Use(routes.LoginLimiter.Middleware())
		}
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
	})

	router.Group(func(r chi.Router) {
		r.Use(routes.Auth.Middleware())

		// Любой аутентифицированный пользователь
		r.Get("/docker/images", h.ListImages)
		r.Post("/docker/images/build", h.BuildImage)
		r.Post("/docker/images/github-build", h.BuildImageFromGithub)
		r.Post("/docker/registry/login", h.RegistryLogin)
		r.Post("/docker/images/push", h.PushImage)
		r.Post("/docker/images/pull", h.PullImage)
		r.Delete("/docker/images/{image_name}/delete", h.RemoveImage)

		r.Post("/docker/containers", h.RunContainer)
		r.Post("/docker/containers/advanced", h.RunContainerAdvanced)
		r.Post("/docker/containers/{container_name}/logs", h.ContainerLogs)

		// Только Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))

			r.Post("/docker/containers/list", h.ListContainers)
			r.Post("/docker/containers/{container_name}/start", h.StartContainer)
			r.Post("/docker/containers/{container_name}/stop", h.StopContainer)
			r.Post("/docker/containers/{container_name}/delete", h.RemoveContainer)

			r.Post("/docker/volumes/create", h.CreateVolume)
			r.Delete("/docker/volumes/{volume_name}/delete", h.RemoveVolume)

			r.Get("/admin/users", h.ListUsers)
			r.Get("/admin/users/{username}", h.GetUser)
			r.Delete("/admin/users/{username}/delete", h.DeleteUser)
			r.Get("/admin/containers", h.ListContainerEvents)

			r.Get("/rate-limit/{user_id}", h.GetRateLimit)
			r.Post("/rate-limit/{user_id}/set", h.SetRateLimit)
			r.Put("/rate-limit/{user_id}/update", h.UpdateRateLimit)
		})
	})

	return router
}

// New создаёт HTTP-сервер поверх готового маршрутизатора.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Сборка и загрузка образов идут синхронно
		WriteTimeout: cfg.DockerClientTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

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

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
