// Пакет config — загрузка и валидация конфигурации Container Manager
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Container Manager.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT ---

	// Общий секрет подписи токенов
	JWTSecret string
	// Алгоритм подписи (HS256, HS384, HS512)
	JWTAlgorithm string
	// Время жизни access token
	AccessTokenTTL time.Duration
	// Стоимость bcrypt-хеширования паролей
	BcryptCost int

	// --- Ограничение частоты ---

	// Максимум запусков контейнеров на пользователя за скользящий час
	MaxContainersPerHour int
	// Сколько хранить события запуска контейнеров
	EventRetention time.Duration
	// Период фоновой очистки устаревших событий
	EventPurgeInterval time.Duration
	// Лимит запросов к /auth/* с одного IP в секунду (0 — выключено)
	LoginRateLimitRPS float64
	// Размер всплеска для лимита /auth/*
	LoginRateLimitBurst int
	// Прокси, которым доверяется X-Forwarded-For (пусто — IP берётся из соединения)
	TrustedProxies []netip.Prefix

	// --- Docker Engine ---

	// Адрес Docker Engine (unix:///var/run/docker.sock, tcp://host:2375)
	DockerHost string
	// Таймаут одного вызова Docker Engine API
	DockerClientTimeout time.Duration
	// Тег образа по умолчанию при сборке без тега
	DefaultImageTag string

	// --- Мониторинг зависимостей ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("CM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("CM_DB_HOST"); err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("CM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("CM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("CM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT ---

	// CM_JWT_SECRET — обязательный
	if cfg.JWTSecret, err = getEnvRequired("CM_JWT_SECRET"); err != nil {
		return nil, err
	}

	cfg.JWTAlgorithm = strings.ToUpper(getEnvDefault("CM_JWT_ALGORITHM", "HS256"))
	switch cfg.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("CM_JWT_ALGORITHM: недопустимое значение %q, допустимые: HS256, HS384, HS512", cfg.JWTAlgorithm)
	}

	// CM_ACCESS_TOKEN_EXPIRE_MINUTES — время жизни токена в минутах (по умолчанию 30)
	ttlMinutes, err := getEnvInt("CM_ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("CM_ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
	}
	if ttlMinutes < 1 {
		return nil, fmt.Errorf("CM_ACCESS_TOKEN_EXPIRE_MINUTES: значение %d должно быть положительным", ttlMinutes)
	}
	cfg.AccessTokenTTL = time.Duration(ttlMinutes) * time.Minute

	cfg.BcryptCost, err = getEnvInt("CM_BCRYPT_COST", bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("CM_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("CM_BCRYPT_COST: значение %d вне допустимого диапазона %d-%d",
			cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// --- Ограничение частоты ---

	// CM_MAX_CONTAINERS_PER_HOUR — лимит запусков в час (по умолчанию 5)
	cfg.MaxContainersPerHour, err = getEnvInt("CM_MAX_CONTAINERS_PER_HOUR", 5)
	if err != nil {
		return nil, fmt.Errorf("CM_MAX_CONTAINERS_PER_HOUR: %w", err)
	}
	if cfg.MaxContainersPerHour < 1 {
		return nil, fmt.Errorf("CM_MAX_CONTAINERS_PER_HOUR: значение %d должно быть положительным", cfg.MaxContainersPerHour)
	}

	cfg.EventRetention, err = getEnvDuration("CM_EVENT_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CM_EVENT_RETENTION: %w", err)
	}

	cfg.EventPurgeInterval, err = getEnvDuration("CM_EVENT_PURGE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CM_EVENT_PURGE_INTERVAL: %w", err)
	}
	if cfg.EventPurgeInterval <= 0 {
		return nil, fmt.Errorf("CM_EVENT_PURGE_INTERVAL: значение %v должно быть положительным", cfg.EventPurgeInterval)
	}

	cfg.LoginRateLimitRPS, err = getEnvFloat("CM_LOGIN_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("CM_LOGIN_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.LoginRateLimitRPS < 0 {
		return nil, fmt.Errorf("CM_LOGIN_RATE_LIMIT_RPS: значение %v не может быть отрицательным", cfg.LoginRateLimitRPS)
	}

	cfg.LoginRateLimitBurst, err = getEnvInt("CM_LOGIN_RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("CM_LOGIN_RATE_LIMIT_BURST: %w", err)
	}
	if cfg.LoginRateLimitBurst < 1 {
		return nil, fmt.Errorf("CM_LOGIN_RATE_LIMIT_BURST: значение %d должно быть положительным", cfg.LoginRateLimitBurst)
	}

	cfg.TrustedProxies, err = getEnvPrefixes("CM_TRUSTED_PROXIES")
	if err != nil {
		return nil, fmt.Errorf("CM_TRUSTED_PROXIES: %w", err)
	}

	// --- Docker Engine ---

	cfg.DockerHost = getEnvDefault("CM_DOCKER_HOST", "unix:///var/run/docker.sock")

	cfg.DockerClientTimeout, err = getEnvDuration("CM_DOCKER_CLIENT_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DOCKER_CLIENT_TIMEOUT: %w", err)
	}

	cfg.DefaultImageTag = getEnvDefault("CM_DEFAULT_IMAGE_TAG", "default:latest")

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "container-manager")

	cfg.DephealthCheckInterval, err = getEnvDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvPrefixes разбирает список сетей через запятую: CIDR (10.0.0.0/8)
// или одиночные адреса (192.0.2.10).
func getEnvPrefixes(key string) ([]netip.Prefix, error) {
	val := os.Getenv(key)
	if val == "" {
		return nil, nil
	}
	var prefixes []netip.Prefix
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("некорректная сеть: %q", item)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("некорректный адрес: %q", item)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
