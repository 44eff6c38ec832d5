// images.go — сборка, публикация и загрузка образов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/distribution/reference"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// ImageService — операции с образами Docker.
type ImageService struct {
	engine     ImageEngine
	defaultTag string
	logger     *slog.Logger
}

// NewImageService создаёт сервис образов. defaultTag — тег сборки без явного тега.
func NewImageService(engine ImageEngine, defaultTag string, logger *slog.Logger) *ImageService {
	return &ImageService{
		engine:     engine,
		defaultTag: defaultTag,
		logger:     logger.With(slog.String("component", "image_service")),
	}
}

// Build собирает образ из каталога на сервере (ContextPath)
// или удалённого репозитория (RemoteURL).
func (s *ImageService) Build(ctx context.Context, userID string, req model.ImageBuildRequest) (*model.ImageBuildResult, error) {
	if req.ContextPath == "" && req.RemoteURL == "" {
		return nil, validationError("нужно указать path или github_url")
	}
	if req.ContextPath != "" && req.RemoteURL != "" {
		return nil, validationError("path и github_url взаимоисключающие")
	}
	if req.RemoteURL != "" {
		if err := validateRemoteURL(req.RemoteURL); err != nil {
			return nil, err
		}
	}

	if req.Tag == "" {
		req.Tag = s.defaultTag
	}
	if err := validateReference("tag", req.Tag); err != nil {
		return nil, err
	}

	s.logger.Info("Сборка образа",
		slog.String("user_id", userID),
		slog.String("tag", req.Tag),
		slog.String("path", req.ContextPath),
		slog.String("remote", req.RemoteURL),
	)

	result, err := s.engine.BuildImage(ctx, req)
	if err != nil {
		return nil, engineError(err, "контекст сборки не найден", "Ошибка сборки образа")
	}
	if len(result.Tags) == 0 {
		result.Tags = []string{"<none>:<none>"}
	}
	return result, nil
}

// List возвращает список образов.
func (s *ImageService) List(ctx context.Context, req model.ImageListRequest) ([]model.ImageSummary, error) {
	images, err := s.engine.ListImages(ctx, req)
	if err != nil {
		return nil, engineError(err, "образы не найдены", "Ошибка получения списка образов")
	}
	return images, nil
}

// RegistryLogin выполняет вход в реестр образов.
func (s *ImageService) RegistryLogin(ctx context.Context, userID string, creds model.RegistryCredentials) error {
	if creds.Username == "" || creds.Password == "" {
		return validationError("username и password обязательны")
	}
	if err := s.engine.RegistryLogin(ctx, creds); err != nil {
		return engineError(err, "реестр не найден", "Ошибка входа в реестр образов")
	}
	s.logger.Info("Вход в реестр образов",
		slog.String("user_id", userID),
		slog.String("registry_user", creds.Username),
	)
	return nil
}

// Push публикует локальный образ localTag под именем remoteRepo.
func (s *ImageService) Push(ctx context.Context, userID, localTag, remoteRepo string) error {
	if localTag == "" {
		return validationError("local_tag обязателен")
	}
	if err := validateReference("remote_repo", remoteRepo); err != nil {
		return err
	}
	if err := s.engine.PushImage(ctx, localTag, remoteRepo); err != nil {
		return engineError(err, fmt.Sprintf("образ %s не найден", localTag), "Ошибка публикации образа")
	}
	s.logger.Info("Образ опубликован пользователем",
		slog.String("user_id", userID),
		slog.String("remote_repo", remoteRepo),
	)
	return nil
}

// Pull загружает образ и при необходимости ставит локальный тег.
func (s *ImageService) Pull(ctx context.Context, userID, repository, localTag string) ([]string, error) {
	if err := validateReference("repository", repository); err != nil {
		return nil, err
	}
	if localTag != "" {
		if err := validateReference("local_tag", localTag); err != nil {
			return nil, err
		}
	}

	tags, err := s.engine.PullImage(ctx, repository, localTag)
	if err != nil {
		return nil, engineError(err, fmt.Sprintf("образ %s не найден", repository), "Ошибка загрузки образа")
	}
	s.logger.Info("Образ загружен пользователем",
		slog.String("user_id", userID),
		slog.String("repository", repository),
	)
	return tags, nil
}

// Remove удаляет образ.
func (s *ImageService) Remove(ctx context.Context, userID, name string, force, noPrune bool) error {
	if name == "" {
		return validationError("имя образа обязательно")
	}
	if err := s.engine.RemoveImage(ctx, name, force, noPrune); err != nil {
		return engineError(err, fmt.Sprintf("образ %s не найден", name), "Ошибка удаления образа")
	}
	s.logger.Info("Образ удалён",
		slog.String("user_id", userID),
		slog.String("image", name),
	)
	return nil
}

// validateReference проверяет имя образа вида repo[:tag] без дайджеста.
func validateReference(field, ref string) error {
	if ref == "" {
		return validationError("%s обязателен", field)
	}
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return validationError("%s: некорректное имя образа %q: %v", field, ref, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return validationError("%s: дайджест в имени образа не допускается", field)
	}
	return nil
}

// validateRemoteURL проверяет адрес удалённого контекста сборки.
func validateRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "git") || u.Host == "" {
		return validationError("github_url: ожидается http(s)- или git-адрес репозитория")
	}
	return nil
}
