// volumes.go — создание и удаление томов.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// VolumeService — операции с томами Docker.
type VolumeService struct {
	engine VolumeEngine
	logger *slog.Logger
}

// NewVolumeService создаёт сервис томов.
func NewVolumeService(engine VolumeEngine, logger *slog.Logger) *VolumeService {
	return &VolumeService{
		engine: engine,
		logger: logger.With(slog.String("component", "volume_service")),
	}
}

// Create создаёт том.
func (s *VolumeService) Create(ctx context.Context, userID string, req model.VolumeCreateRequest) (*model.Volume, error) {
	vol, err := s.engine.CreateVolume(ctx, req)
	if err != nil {
		return nil, engineError(err, "драйвер тома не найден", "Ошибка создания тома")
	}
	s.logger.Info("Том создан пользователем",
		slog.String("user_id", userID),
		slog.String("volume", vol.Name),
	)
	return vol, nil
}

// Remove удаляет том.
func (s *VolumeService) Remove(ctx context.Context, userID, name string, force bool) error {
	if err := s.engine.RemoveVolume(ctx, name, force); err != nil {
		return engineError(err, fmt.Sprintf("том %s не найден", name), "Ошибка удаления тома")
	}
	s.logger.Info("Том удалён",
		slog.String("user_id", userID),
		slog.String("volume", name),
	)
	return nil
}
