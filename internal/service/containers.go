// containers.go — запуск и управление контейнерами.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// ContainerService — запуск контейнеров с ограничением частоты и операции над ними.
type ContainerService struct {
	engine  ContainerEngine
	limiter *WindowLimiter
	logger  *slog.Logger
}

// NewContainerService создаёт сервис контейнеров.
func NewContainerService(engine ContainerEngine, limiter *WindowLimiter, logger *slog.Logger) *ContainerService {
	return &ContainerService{
		engine:  engine,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "container_service")),
	}
}

// Run запускает контейнер от имени пользователя.
// Порядок: проверка лимита, запуск в Docker, запись события.
// Неудачный запуск событие не записывает.
func (s *ContainerService) Run(ctx context.Context, userID string, req model.ContainerRunRequest) (*model.ContainerRunResult, error) {
	if req.Image == "" {
		return nil, validationError("image обязателен")
	}

	if err := s.limiter.CheckAndAdmit(ctx, userID); err != nil {
		return nil, err
	}

	result, err := s.engine.RunContainer(ctx, req)
	if err != nil {
		return nil, engineError(err, "образ "+req.Image+" не найден", "Ошибка запуска контейнера")
	}

	// Контейнер уже запущен: ошибка журнала не отменяет результат
	if err := s.limiter.Record(ctx, userID, result.Name); err != nil {
		s.logger.Error("Контейнер запущен, но событие не записано",
			slog.String("user_id", userID),
			slog.String("container", result.Name),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Контейнер запущен пользователем",
		slog.String("user_id", userID),
		slog.String("container_id", result.ID),
		slog.String("container", result.Name),
		slog.String("image", req.Image),
	)
	return result, nil
}

// List возвращает контейнеры по фильтрам.
func (s *ContainerService) List(ctx context.Context, req model.ContainerListRequest) ([]model.ContainerSummary, error) {
	list, err := s.engine.ListContainers(ctx, req)
	if err != nil {
		return nil, engineError(err, "контейнеры не найдены", "Ошибка получения списка контейнеров")
	}
	return list, nil
}

// Start запускает остановленный контейнер.
func (s *ContainerService) Start(ctx context.Context, name string) error {
	if err := s.engine.StartContainer(ctx, name); err != nil {
		return engineError(err, containerNotFound(name), "Ошибка запуска контейнера")
	}
	s.logger.Info("Контейнер запущен", slog.String("container", name))
	return nil
}

// Stop останавливает контейнер. timeout — секунды до принудительной остановки.
func (s *ContainerService) Stop(ctx context.Context, name string, timeout *int) error {
	if timeout != nil && *timeout < 0 {
		return validationError("timeout не может быть отрицательным")
	}
	if err := s.engine.StopContainer(ctx, name, timeout); err != nil {
		return engineError(err, containerNotFound(name), "Ошибка остановки контейнера")
	}
	s.logger.Info("Контейнер остановлен", slog.String("container", name))
	return nil
}

// Logs возвращает логи контейнера построчно. Потоковое чтение (follow) не поддерживается.
func (s *ContainerService) Logs(ctx context.Context, name string, req model.ContainerLogsRequest, follow bool) ([]string, error) {
	if follow {
		return nil, validationError("потоковое чтение логов не поддерживается")
	}
	if !req.Stdout && !req.Stderr {
		return nil, validationError("нужно выбрать stdout и/или stderr")
	}

	lines, err := s.engine.ContainerLogs(ctx, name, req)
	if err != nil {
		return nil, engineError(err, containerNotFound(name), "Ошибка получения логов контейнера")
	}
	return lines, nil
}

// Remove удаляет контейнер.
func (s *ContainerService) Remove(ctx context.Context, name string, req model.ContainerRemoveRequest) error {
	if err := s.engine.RemoveContainer(ctx, name, req); err != nil {
		return engineError(err, containerNotFound(name), "Ошибка удаления контейнера")
	}
	s.logger.Info("Контейнер удалён",
		slog.String("container", name),
		slog.Bool("force", req.Force),
	)
	return nil
}

func containerNotFound(name string) string {
	return fmt.Sprintf("контейнер %s не найден", name)
}
