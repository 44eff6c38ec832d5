// Пакет engine — клиент Docker Engine API.
// Оборачивает github.com/docker/docker/client: сборка, загрузка и публикация
// образов, жизненный цикл контейнеров, тома. Ошибки движка приводятся
// к видам ErrNotFound, ErrUnauthorized, ErrInvalidArgument, ErrConflict.
// Повторных попыток нет.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
)

// Виды ошибок движка.
var (
	// ErrNotFound — объект (образ, контейнер, том) не найден.
	ErrNotFound = errors.New("объект Docker не найден")
	// ErrUnauthorized — реестр отклонил учётные данные.
	ErrUnauthorized = errors.New("реестр требует аутентификации")
	// ErrInvalidArgument — движок отклонил параметры запроса.
	ErrInvalidArgument = errors.New("некорректные параметры Docker")
	// ErrConflict — конфликт состояния (имя занято, контейнер запущен).
	ErrConflict = errors.New("конфликт состояния Docker")
)

// Client — клиент Docker Engine API.
// Хранит учётные данные реестров после успешного RegistryLogin
// и подставляет их при push/pull.
type Client struct {
	api     *client.Client
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	auths map[string]registry.AuthConfig
}

// New создаёт клиент Docker Engine.
// host — адрес движка (unix:///var/run/docker.sock, tcp://host:2375),
// timeout — ограничение одного вызова API.
func New(host string, timeout time.Duration, logger *slog.Logger, opts ...client.Opt) (*Client, error) {
	clientOpts := []client.Opt{
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	}
	clientOpts = append(clientOpts, opts...)

	api, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("создание клиента Docker: %w", err)
	}

	return &Client{
		api:     api,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "docker_engine")),
		auths:   make(map[string]registry.AuthConfig),
	}, nil
}

// Close освобождает транспорт клиента.
func (c *Client) Close() error {
	return c.api.Close()
}

// Ping проверяет доступность движка.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.api.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// readyTimeout — таймаут проверки Docker Engine в readiness.
const readyTimeout = 3 * time.Second

// CheckReady проверяет доступность Docker Engine для /health/ready.
// Возвращает ("ok"|"fail", сообщение).
func (c *Client) CheckReady(ctx context.Context) (status string, message string) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ping, err := c.api.Ping(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Docker Engine недоступен: %v", err)
	}
	return "ok", fmt.Sprintf("API %s, %s", ping.APIVersion, ping.OSType)
}

// withTimeout ограничивает контекст таймаутом вызова.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// mapError приводит ошибку Docker к виду движка.
// Исходная ошибка сохраняется в цепочке для логирования.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errdefs.IsUnauthorized(err) || isAuthMessage(err.Error()):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errdefs.IsInvalidArgument(err):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

// isAuthMessage распознаёт отказ реестра по тексту сообщения:
// в потоке push/pull ошибка приходит строкой, без HTTP-статуса.
func isAuthMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication required")
}
