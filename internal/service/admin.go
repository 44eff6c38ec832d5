// admin.go — административные операции: пользователи и журнал запусков.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/repository"
)

// AdminService — просмотр и удаление пользователей, журнал запусков контейнеров.
type AdminService struct {
	users  repository.UserRepository
	events repository.ContainerEventRepository
	logger *slog.Logger
}

// NewAdminService создаёт административный сервис.
func NewAdminService(
	users repository.UserRepository,
	events repository.ContainerEventRepository,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:  users,
		events: events,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// ListUsers возвращает всех пользователей.
func (s *AdminService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	return users, nil
}

// GetUser возвращает пользователя или ErrNotFound.
func (s *AdminService) GetUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s", ErrNotFound, username)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// DeleteUser удаляет пользователя. Квота и журнал запусков не затрагиваются.
func (s *AdminService) DeleteUser(ctx context.Context, username, deletedBy string) error {
	if err := s.users.Delete(ctx, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: пользователь %s", ErrNotFound, username)
		}
		return fmt.Errorf("удаление пользователя: %w", err)
	}

	s.logger.Info("Пользователь удалён",
		slog.String("username", username),
		slog.String("deleted_by", deletedBy),
	)
	return nil
}

// ListContainerEvents возвращает журнал запусков контейнеров, новые первыми.
func (s *AdminService) ListContainerEvents(ctx context.Context) ([]*model.ContainerEvent, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение журнала запусков: %w", err)
	}
	return events, nil
}
