package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/platforms"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// cleanupTimeout — таймаут удаления контейнера после неудачного запуска.
const cleanupTimeout = 10 * time.Second

// RunContainer создаёт и запускает контейнер.
// Возвращает ID, имя и состояние после запуска.
func (c *Client) RunContainer(ctx context.Context, req model.ContainerRunRequest) (*model.ContainerRunResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg, hostCfg, netCfg, platform, err := buildRunConfig(req)
	if err != nil {
		return nil, err
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, platform, req.Name)
	if err != nil {
		return nil, mapError(err)
	}
	for _, w := range created.Warnings {
		c.logger.Warn("Предупреждение Docker при создании контейнера",
			slog.String("container_id", created.ID),
			slog.String("warning", w),
		)
	}

	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		c.removeCreated(ctx, created.ID)
		return nil, mapError(err)
	}

	result := &model.ContainerRunResult{ID: created.ID, Name: req.Name}
	inspect, err := c.api.ContainerInspect(ctx, created.ID)
	if err == nil && inspect.ContainerJSONBase != nil {
		result.Name = strings.TrimPrefix(inspect.Name, "/")
		if inspect.State != nil {
			result.Status = inspect.State.Status
		}
	}

	c.logger.Info("Контейнер запущен",
		slog.String("container_id", result.ID),
		slog.String("name", result.Name),
		slog.String("image", req.Image),
	)
	return result, nil
}

// removeCreated удаляет контейнер, который создан, но не запустился,
// чтобы имя освободилось для повторной попытки.
func (c *Client) removeCreated(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		c.logger.Error("Не удалось удалить незапущенный контейнер",
			slog.String("container_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Info("Незапущенный контейнер удалён", slog.String("container_id", id))
}

// ListContainers возвращает контейнеры по фильтрам.
func (c *Client) ListContainers(ctx context.Context, req model.ContainerListRequest) ([]model.ContainerSummary, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     req.All,
		Limit:   req.Limit,
		Since:   req.Since,
		Before:  req.Before,
		Filters: buildFilters(req.Filters),
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]model.ContainerSummary, 0, len(list))
	for _, item := range list {
		name := ""
		if len(item.Names) > 0 {
			name = strings.TrimPrefix(item.Names[0], "/")
		}
		result = append(result, model.ContainerSummary{
			ID:     item.ID,
			Name:   name,
			Image:  item.Image,
			State:  string(item.State),
			Status: item.Status,
		})
	}
	return result, nil
}

// StartContainer запускает остановленный контейнер.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return mapError(c.api.ContainerStart(ctx, name, container.StartOptions{}))
}

// StopContainer останавливает контейнер. timeout — секунды до SIGKILL,
// nil — значение движка по умолчанию.
func (c *Client) StopContainer(ctx context.Context, name string, timeout *int) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return mapError(c.api.ContainerStop(ctx, name, container.StopOptions{Timeout: timeout}))
}

// ContainerLogs возвращает логи контейнера построчно.
// stdout и stderr объединяются в порядке поступления.
func (c *Client) ContainerLogs(ctx context.Context, name string, req model.ContainerLogsRequest) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	inspect, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		return nil, mapError(err)
	}

	tail := req.Tail
	if tail == "" {
		tail = "all"
	}

	rc, err := c.api.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: req.Stdout,
		ShowStderr: req.Stderr,
		Timestamps: req.Timestamps,
		Tail:       tail,
		Since:      req.Since,
		Until:      req.Until,
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if inspect.Config != nil && inspect.Config.Tty {
		_, err = io.Copy(&buf, rc)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return nil, fmt.Errorf("чтение логов контейнера %s: %w", name, err)
	}

	return splitLines(buf.String()), nil
}

// RemoveContainer удаляет контейнер.
func (c *Client) RemoveContainer(ctx context.Context, name string, req model.ContainerRemoveRequest) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.api.ContainerRemove(ctx, name, container.RemoveOptions{
		RemoveVolumes: req.RemoveVolumes,
		RemoveLinks:   req.RemoveLinks,
		Force:         req.Force,
	})
	return mapError(err)
}

// buildRunConfig переводит параметры запуска в конфигурацию Docker API.
func buildRunConfig(req model.ContainerRunRequest) (
	*container.Config, *container.HostConfig, *network.NetworkingConfig, *ocispec.Platform, error,
) {
	exposed, bindings, err := parsePorts(req.Ports)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cfg := &container.Config{
		Image:           req.Image,
		Cmd:             req.Command,
		Env:             req.Env,
		Labels:          req.Labels,
		WorkingDir:      req.WorkingDir,
		User:            req.User,
		Tty:             req.Tty,
		OpenStdin:       req.StdinOpen,
		StopSignal:      req.StopSignal,
		NetworkDisabled: req.NetworkDisabled,
		ExposedPorts:    exposed,
	}

	hostCfg := &container.HostConfig{
		AutoRemove:      req.AutoRemove,
		Privileged:      req.Privileged,
		PublishAllPorts: req.PublishAllPorts,
		ReadonlyRootfs:  req.ReadOnly,
		NetworkMode:     container.NetworkMode(req.NetworkMode),
		PortBindings:    bindings,
		Binds:           req.Volumes,
		VolumesFrom:     req.VolumesFrom,
		Tmpfs:           req.Tmpfs,
		Sysctls:         req.Sysctls,
		StorageOpt:      req.StorageOpt,
		SecurityOpt:     req.SecurityOpt,
		OomScoreAdj:     req.OomScoreAdj,
		PidMode:         container.PidMode(req.PidMode),
		UsernsMode:      container.UsernsMode(req.UsernsMode),
		UTSMode:         container.UTSMode(req.UTSMode),
		Runtime:         req.Runtime,
		VolumeDriver:    req.VolumeDriver,
	}
	hostCfg.NanoCPUs = req.NanoCPUs
	hostCfg.PidsLimit = req.PidsLimit
	hostCfg.MemorySwappiness = req.MemSwappiness
	if req.OomKillDisable {
		disable := true
		hostCfg.OomKillDisable = &disable
	}
	if req.RestartPolicy != nil {
		hostCfg.RestartPolicy = container.RestartPolicy{
			Name:              container.RestartPolicyMode(req.RestartPolicy.Name),
			MaximumRetryCount: req.RestartPolicy.MaximumRetryCount,
		}
	}

	sizes := []struct {
		field string
		value string
		dst   *int64
	}{
		{"mem_limit", req.MemLimit, &hostCfg.Memory},
		{"mem_reservation", req.MemReservation, &hostCfg.MemoryReservation},
		{"memswap_limit", req.MemSwap, &hostCfg.MemorySwap},
		{"shm_size", req.ShmSize, &hostCfg.ShmSize},
	}
	for _, s := range sizes {
		if s.value == "" {
			continue
		}
		n, err := units.RAMInBytes(s.value)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, s.field, err)
		}
		*s.dst = n
	}

	var netCfg *network.NetworkingConfig
	if req.MacAddress != "" {
		endpoint := req.NetworkMode
		if endpoint == "" {
			endpoint = network.NetworkBridge
		}
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				endpoint: {MacAddress: req.MacAddress},
			},
		}
	}

	var platform *ocispec.Platform
	if req.Platform != "" {
		p, err := platforms.Parse(req.Platform)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: platform: %v", ErrInvalidArgument, err)
		}
		platform = &p
	}

	return cfg, hostCfg, netCfg, platform, nil
}

// parsePorts разбирает публикацию портов вида "8080/tcp" -> "127.0.0.1:8080".
// Пустое значение публикует порт на случайном порту хоста.
func parsePorts(ports map[string]string) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}

	specs := make([]string, 0, len(ports))
	for containerPort, host := range ports {
		spec := containerPort
		if host != "" {
			spec = host + ":" + containerPort
		}
		specs = append(specs, spec)
	}

	exposed, bindings, err := nat.ParsePortSpecs(specs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ports: %v", ErrInvalidArgument, err)
	}
	return exposed, bindings, nil
}

// splitLines делит вывод на строки без завершающих \r и пустого хвоста.
func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
