package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/go-archive"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// defaultRegistry — ключ учётных данных Docker Hub.
const defaultRegistry = "docker.io"

// BuildImage собирает образ из каталога на сервере или удалённого git-репозитория.
// Поток сборки читается до конца; ошибка в потоке — ошибка сборки.
func (c *Client) BuildImage(ctx context.Context, req model.ImageBuildRequest) (*model.ImageBuildResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := build.ImageBuildOptions{
		Tags:           []string{req.Tag},
		SuppressOutput: req.Quiet,
		NoCache:        req.NoCache,
		PullParent:     req.Pull,
		Remove:         req.Remove,
		ForceRemove:    req.ForceRemove,
		Dockerfile:     req.Dockerfile,
		BuildArgs:      req.BuildArgs,
		Labels:         req.Labels,
		CacheFrom:      req.CacheFrom,
		Target:         req.Target,
		NetworkMode:    req.NetworkMode,
		ShmSize:        req.ShmSize,
		ExtraHosts:     req.ExtraHosts,
		Platform:       req.Platform,
		Squash:         req.Squash,
		AuthConfigs:    c.authConfigs(),
	}
	if req.Isolation != "" {
		opts.Isolation = container.Isolation(req.Isolation)
	}

	var buildContext io.Reader
	if req.RemoteURL != "" {
		opts.RemoteContext = req.RemoteURL
	} else {
		tar, err := archive.TarWithOptions(req.ContextPath, &archive.TarOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: контекст сборки %s: %v", ErrInvalidArgument, req.ContextPath, err)
		}
		defer tar.Close()
		buildContext = tar
	}

	resp, err := c.api.ImageBuild(ctx, buildContext, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	imageID, err := readStream(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Образ собран",
		slog.String("image_id", imageID),
		slog.String("tag", req.Tag),
	)

	tags := []string{req.Tag}
	if imageID != "" {
		if inspect, err := c.api.ImageInspect(ctx, imageID); err == nil && len(inspect.RepoTags) > 0 {
			tags = inspect.RepoTags
		}
	}
	return &model.ImageBuildResult{ID: imageID, Tags: tags}, nil
}

// ListImages возвращает образы, отфильтрованные по reference и меткам.
func (c *Client) ListImages(ctx context.Context, req model.ImageListRequest) ([]model.ImageSummary, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	args := buildFilters(req.Filters)
	if req.Name != "" {
		args.Add("reference", req.Name)
	}

	images, err := c.api.ImageList(ctx, image.ListOptions{All: req.All, Filters: args})
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]model.ImageSummary, 0, len(images))
	for _, img := range images {
		tags := img.RepoTags
		if tags == nil {
			tags = []string{}
		}
		result = append(result, model.ImageSummary{ID: img.ID, Tags: tags, Size: img.Size})
	}
	return result, nil
}

// PullImage загружает образ и при localTag != "" добавляет локальный тег.
// Возвращает теги образа после загрузки.
func (c *Client) PullImage(ctx context.Context, repository, localTag string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	auth, err := c.encodedAuth(repository)
	if err != nil {
		return nil, err
	}

	rc, err := c.api.ImagePull(ctx, repository, image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return nil, mapError(err)
	}
	defer rc.Close()

	if _, err := readStream(rc); err != nil {
		return nil, err
	}

	if localTag != "" {
		if err := c.api.ImageTag(ctx, repository, localTag); err != nil {
			return nil, mapError(err)
		}
	}

	inspect, err := c.api.ImageInspect(ctx, repository)
	if err != nil {
		return nil, mapError(err)
	}

	c.logger.Info("Образ загружен",
		slog.String("repository", repository),
		slog.String("local_tag", localTag),
	)
	return inspect.RepoTags, nil
}

// PushImage ставит на локальный образ тег remoteRepo и публикует его.
func (c *Client) PushImage(ctx context.Context, localTag, remoteRepo string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.api.ImageTag(ctx, localTag, remoteRepo); err != nil {
		return mapError(err)
	}

	auth, err := c.encodedAuth(remoteRepo)
	if err != nil {
		return err
	}

	rc, err := c.api.ImagePush(ctx, remoteRepo, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()

	if _, err := readStream(rc); err != nil {
		return err
	}

	c.logger.Info("Образ опубликован",
		slog.String("local_tag", localTag),
		slog.String("remote_repo", remoteRepo),
	)
	return nil
}

// RemoveImage удаляет образ. noPrune оставляет непомеченные родительские слои.
func (c *Client) RemoveImage(ctx context.Context, name string, force, noPrune bool) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.ImageRemove(ctx, name, image.RemoveOptions{Force: force, PruneChildren: !noPrune})
	return mapError(err)
}

// RegistryLogin проверяет учётные данные в реестре и запоминает их
// для последующих push/pull в этот реестр.
func (c *Client) RegistryLogin(ctx context.Context, creds model.RegistryCredentials) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	auth := registry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: creds.ServerAddress,
	}
	resp, err := c.api.RegistryLogin(ctx, auth)
	if err != nil {
		return mapError(err)
	}
	if resp.IdentityToken != "" {
		auth.IdentityToken = resp.IdentityToken
		auth.Password = ""
	}

	key := creds.ServerAddress
	if key == "" {
		key = defaultRegistry
	}

	c.mu.Lock()
	c.auths[key] = auth
	c.mu.Unlock()

	c.logger.Info("Вход в реестр выполнен",
		slog.String("registry", key),
		slog.String("username", creds.Username),
	)
	return nil
}

// encodedAuth возвращает X-Registry-Auth для реестра образа ref.
// Пустая строка — учётных данных нет.
func (c *Client) encodedAuth(ref string) (string, error) {
	key := defaultRegistry
	if named, err := reference.ParseNormalizedNamed(ref); err == nil {
		key = reference.Domain(named)
	}

	c.mu.RLock()
	auth, ok := c.auths[key]
	c.mu.RUnlock()
	if !ok {
		return "", nil
	}

	encoded, err := registry.EncodeAuthConfig(auth)
	if err != nil {
		return "", fmt.Errorf("кодирование учётных данных реестра: %w", err)
	}
	return encoded, nil
}

// authConfigs возвращает копию сохранённых учётных данных для сборки.
func (c *Client) authConfigs() map[string]registry.AuthConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.auths) == 0 {
		return nil
	}
	result := make(map[string]registry.AuthConfig, len(c.auths))
	for k, v := range c.auths {
		result[k] = v
	}
	return result
}

// auxID — служебное сообщение потока сборки с ID образа.
type auxID struct {
	ID string `json:"ID"`
}

// readStream читает JSON-поток build/pull/push до конца.
// Возвращает последний ID образа из aux-сообщений.
func readStream(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var imageID string
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return imageID, nil
			}
			return "", fmt.Errorf("чтение потока Docker: %w", err)
		}
		if msg.Error != nil {
			return "", mapError(msg.Error)
		}
		if msg.Aux != nil {
			var aux auxID
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}
	}
}

// buildFilters преобразует map фильтров в filters.Args.
func buildFilters(src map[string][]string) filters.Args {
	args := filters.NewArgs()
	for key, values := range src {
		for _, v := range values {
			args.Add(key, v)
		}
	}
	return args
}
