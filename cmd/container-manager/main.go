// Точка входа Container Manager — REST API управления Docker Engine
// с пользователями, ролями и ограничением частоты запусков контейнеров.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и Docker Engine, создаёт сервисный слой и API handlers, запускает
// фоновые задачи (очистка журнала запусков, topologymetrics)
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/container-manager/internal/api/handlers"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/api/openapi"
	"github.com/arturkryukov/container-manager/internal/auth"
	"github.com/arturkryukov/container-manager/internal/config"
	"github.com/arturkryukov/container-manager/internal/database"
	"github.com/arturkryukov/container-manager/internal/engine"
	"github.com/arturkryukov/container-manager/internal/repository"
	"github.com/arturkryukov/container-manager/internal/server"
	"github.com/arturkryukov/container-manager/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Container Manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CM_DEPHEALTH_GROUP") == "" {
		logger.Warn("CM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	userRepo := repository.NewUserRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(pool)
	eventRepo := repository.NewContainerEventRepository(pool)

	// 6. Токены и пароли
	tokenCodec, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL)
	if err != nil {
		logger.Error("Ошибка создания JWT codec", slog.String("error", err.Error()))
		os.Exit(1)
	}
	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		logger.Error("Ошибка создания bcrypt hasher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT codec инициализирован",
		slog.String("algorithm", cfg.JWTAlgorithm),
		slog.String("ttl", tokenCodec.TTL().String()),
	)

	// 7. Docker Engine клиент
	engineClient, err := engine.New(cfg.DockerHost, cfg.DockerClientTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Docker Engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = engineClient.Close() }()

	if pingErr := engineClient.Ping(ctx); pingErr != nil {
		// Docker может подняться позже, readiness покажет состояние
		logger.Warn("Docker Engine недоступен при старте",
			slog.String("host", cfg.DockerHost),
			slog.String("error", pingErr.Error()),
		)
	}

	// 8. Services
	authSvc := service.NewAuthenticator(userRepo, hasher, tokenCodec, logger)
	quotaSvc := service.NewQuotaService(rateLimitRepo, nil, logger)
	limiter := service.NewWindowLimiter(eventRepo, cfg.MaxContainersPerHour, nil, logger)
	imageSvc := service.NewImageService(engineClient, cfg.DefaultImageTag, logger)
	containerSvc := service.NewContainerService(engineClient, limiter, logger)
	volumeSvc := service.NewVolumeService(engineClient, logger)
	adminSvc := service.NewAdminService(userRepo, eventRepo, logger)
	logger.Info("Лимит запусков контейнеров", slog.Int("per_hour", limiter.Limit()))

	// 9. Фоновая очистка журнала запусков
	purger := service.NewEventPurger(eventRepo, cfg.EventRetention, cfg.EventPurgeInterval, nil, logger)
	if purger.Retention() != cfg.EventRetention {
		logger.Warn("CM_EVENT_RETENTION меньше окна ограничения, срок хранения увеличен",
			slog.String("retention", purger.Retention().String()),
		)
	}
	purger.Start(ctx)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + Docker Engine)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "container-manager",
		Group:         cfg.DephealthGroup,
		PostgresURL:   cfg.DatabaseURL(),
		DockerHost:    cfg.DockerHost,
		CheckInterval: cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. OpenAPI-документ
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-документа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Handlers и middleware
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), engineClient)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		authSvc,
		quotaSvc,
		imageSvc,
		containerSvc,
		volumeSvc,
		adminSvc,
		logger,
	)

	routes := server.Routes{
		API:     apiHandler,
		Auth:    middleware.NewAuthenticator(tokenCodec, logger),
		OpenAPI: doc,
	}
	if cfg.LoginRateLimitRPS > 0 {
		routes.LoginLimiter = middleware.NewIPRateLimiter(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst).
			WithTrustedProxies(cfg.TrustedProxies)
		logger.Info("Ограничение /auth/* по IP включено",
			slog.Float64("rps", cfg.LoginRateLimitRPS),
			slog.Int("burst", cfg.LoginRateLimitBurst),
			slog.Int("trusted_proxies", len(cfg.TrustedProxies)),
		)
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.NewRouter(routes, logger))
	runErr := srv.Run()

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	purger.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Container Manager остановлен")
}
