// engine.go — контракты с Docker Engine и приведение его ошибок
// к ошибкам сервисного слоя.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/engine"
)

// ImageEngine — операции с образами.
type ImageEngine interface {
	BuildImage(ctx context.Context, req model.ImageBuildRequest) (*model.ImageBuildResult, error)
	ListImages(ctx context.Context, req model.ImageListRequest) ([]model.ImageSummary, error)
	PullImage(ctx context.Context, repository, localTag string) ([]string, error)
	PushImage(ctx context.Context, localTag, remoteRepo string) error
	RemoveImage(ctx context.Context, name string, force, noPrune bool) error
	RegistryLogin(ctx context.Context, creds model.RegistryCredentials) error
}

// ContainerEngine — операции с контейнерами.
type ContainerEngine interface {
	RunContainer(ctx context.Context, req model.ContainerRunRequest) (*model.ContainerRunResult, error)
	ListContainers(ctx context.Context, req model.ContainerListRequest) ([]model.ContainerSummary, error)
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string, timeout *int) error
	ContainerLogs(ctx context.Context, name string, req model.ContainerLogsRequest) ([]string, error)
	RemoveContainer(ctx context.Context, name string, req model.ContainerRemoveRequest) error
}

// VolumeEngine — операции с томами.
type VolumeEngine interface {
	CreateVolume(ctx context.Context, req model.VolumeCreateRequest) (*model.Volume, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
}

// engineError приводит ошибку движка к виду сервисного слоя.
// notFound — публичное описание отсутствующего объекта,
// failure — публичное описание операции для непредвиденных ошибок.
func engineError(err error, notFound, failure string) error {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, notFound)
	case errors.Is(err, engine.ErrUnauthorized):
		return fmt.Errorf("%w: %s", ErrEngineUnauthorized, failure)
	case errors.Is(err, engine.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, engine.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return &EngineError{Message: failure, Err: err}
	}
}
