package engine

import (
	"context"
	"log/slog"

	"github.com/docker/docker/api/types/volume"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// CreateVolume создаёт том. Пустое имя — имя генерирует движок.
func (c *Client) CreateVolume(ctx context.Context, req model.VolumeCreateRequest) (*model.Volume, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vol, err := c.api.VolumeCreate(ctx, volume.CreateOptions{
		Name:       req.Name,
		Driver:     req.Driver,
		DriverOpts: req.DriverOpts,
		Labels:     req.Labels,
	})
	if err != nil {
		return nil, mapError(err)
	}

	c.logger.Info("Том создан",
		slog.String("name", vol.Name),
		slog.String("driver", vol.Driver),
	)
	return &model.Volume{
		Name:       vol.Name,
		Driver:     vol.Driver,
		Mountpoint: vol.Mountpoint,
		Labels:     vol.Labels,
		CreatedAt:  vol.CreatedAt,
	}, nil
}

// RemoveVolume удаляет том.
func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return mapError(c.api.VolumeRemove(ctx, name, force))
}
