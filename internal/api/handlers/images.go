// images.go — обработчики /docker/images/* и /docker/registry/login.
// Доступ: любой аутентифицированный пользователь.
package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// imageBuildRequest — тело POST /docker/images/build.
type imageBuildRequest struct {
	Path        string             `json:"path"`
	Tag         string             `json:"tag"`
	Dockerfile  string             `json:"dockerfile"`
	Quiet       bool               `json:"quiet"`
	NoCache     bool               `json:"nocache"`
	Rm          bool               `json:"rm"`
	ForceRm     bool               `json:"forcerm"`
	Pull        bool               `json:"pull"`
	BuildArgs   map[string]*string `json:"buildargs"`
	Labels      map[string]string  `json:"labels"`
	CacheFrom   []string           `json:"cache_from"`
	Target      string             `json:"target"`
	NetworkMode string             `json:"network_mode"`
	ShmSize     int64              `json:"shmsize"`
	ExtraHosts  []string           `json:"extra_hosts"`
	Platform    string             `json:"platform"`
	Isolation   string             `json:"isolation"`
	Squash      bool               `json:"squash"`
}

// githubBuildRequest — тело POST /docker/images/github-build.
type githubBuildRequest struct {
	GithubURL      string `json:"github_url"`
	DockerfilePath string `json:"dockerfile_path"`
	Tag            string `json:"tag"`
}

// imageBuildResponse — результат сборки.
type imageBuildResponse struct {
	Message string   `json:"message"`
	ID      string   `json:"id"`
	Tags    []string `json:"tags"`
}

// registryLoginRequest — тело POST /docker/registry/login.
type registryLoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ServerAddress string `json:"server_address"`
}

// imagePushRequest — тело POST /docker/images/push.
type imagePushRequest struct {
	LocalTag   string `json:"local_tag"`
	RemoteRepo string `json:"remote_repo"`
}

// imagePullRequest — тело POST /docker/images/pull.
type imagePullRequest struct {
	Repository string `json:"repository"`
	LocalTag   string `json:"local_tag"`
}

// imagePullResponse — результат загрузки.
type imagePullResponse struct {
	Message    string   `json:"message"`
	Tags       []string `json:"tags"`
	RetaggedAs string   `json:"retagged_as,omitempty"`
}

// imageRemoveRequest — необязательное тело DELETE /docker/images/{image_name}/delete.
type imageRemoveRequest struct {
	Force   bool `json:"force"`
	NoPrune bool `json:"noprune"`
}

// imageSummaryResponse — элемент списка образов.
type imageSummaryResponse struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
	Size int64    `json:"size"`
}

// imageListResponse — ответ GET /docker/images.
type imageListResponse struct {
	Message string                 `json:"message"`
	Images  []imageSummaryResponse `json:"images"`
}

// BuildImage — POST /docker/images/build. Сборка из каталога на сервере.
func (h *APIHandler) BuildImage(w http.ResponseWriter, r *http.Request) {
	var req imageBuildRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.images.Build(r.Context(), middleware.UsernameFromContext(r.Context()), model.ImageBuildRequest{
		ContextPath: req.Path,
		Dockerfile:  req.Dockerfile,
		Tag:         req.Tag,
		Quiet:       req.Quiet,
		NoCache:     req.NoCache,
		Pull:        req.Pull,
		Remove:      req.Rm,
		ForceRemove: req.ForceRm,
		BuildArgs:   req.BuildArgs,
		Labels:      req.Labels,
		CacheFrom:   req.CacheFrom,
		Target:      req.Target,
		NetworkMode: req.NetworkMode,
		ShmSize:     req.ShmSize,
		ExtraHosts:  req.ExtraHosts,
		Platform:    req.Platform,
		Isolation:   req.Isolation,
		Squash:      req.Squash,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка сборки образа")
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(result))
}

// BuildImageFromGithub — POST /docker/images/github-build. Сборка из git-репозитория.
func (h *APIHandler) BuildImageFromGithub(w http.ResponseWriter, r *http.Request) {
	var req githubBuildRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.GithubURL == "" {
		apierrors.ValidationError(w, "github_url обязателен")
		return
	}
	if req.DockerfilePath == "" {
		req.DockerfilePath = "Dockerfile"
	}

	result, err := h.images.Build(r.Context(), middleware.UsernameFromContext(r.Context()), model.ImageBuildRequest{
		RemoteURL:  req.GithubURL,
		Dockerfile: req.DockerfilePath,
		Tag:        req.Tag,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка сборки образа из репозитория")
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(result))
}

func buildResponse(result *model.ImageBuildResult) imageBuildResponse {
	return imageBuildResponse{
		Message: fmt.Sprintf("Образ %s собран", strings.Join(result.Tags, ", ")),
		ID:      result.ID,
		Tags:    result.Tags,
	}
}

// ListImages — GET /docker/images?name=&all=&filter=key=value.
func (h *APIHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var req model.ImageListRequest
	if err := runtime.BindQueryParameter("form", true, false, "name", query, &req.Name); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр name: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "all", query, &req.All); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр all: "+err.Error())
		return
	}
	filters, err := parseFilters(query["filter"])
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	req.Filters = filters

	images, err := h.images.List(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка образов")
		return
	}

	items := make([]imageSummaryResponse, len(images))
	for i, img := range images {
		items[i] = imageSummaryResponse{ID: img.ID, Tags: img.Tags, Size: img.Size}
	}
	writeJSON(w, http.StatusOK, imageListResponse{Message: "Список образов получен", Images: items})
}

// RegistryLogin — POST /docker/registry/login.
func (h *APIHandler) RegistryLogin(w http.ResponseWriter, r *http.Request) {
	var req registryLoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	err := h.images.RegistryLogin(r.Context(), middleware.UsernameFromContext(r.Context()), model.RegistryCredentials{
		Username:      req.Username,
		Password:      req.Password,
		ServerAddress: req.ServerAddress,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка входа в реестр образов")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Вход в реестр выполнен"})
}

// PushImage — POST /docker/images/push.
func (h *APIHandler) PushImage(w http.ResponseWriter, r *http.Request) {
	var req imagePushRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if err := h.images.Push(r.Context(), middleware.UsernameFromContext(r.Context()), req.LocalTag, req.RemoteRepo); err != nil {
		h.writeServiceError(w, r, err, "Ошибка публикации образа")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Образ %s опубликован", req.RemoteRepo)})
}

// PullImage — POST /docker/images/pull.
func (h *APIHandler) PullImage(w http.ResponseWriter, r *http.Request) {
	var req imagePullRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	tags, err := h.images.Pull(r.Context(), middleware.UsernameFromContext(r.Context()), req.Repository, req.LocalTag)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка загрузки образа")
		return
	}

	writeJSON(w, http.StatusOK, imagePullResponse{
		Message:    fmt.Sprintf("Образ %s загружен", req.Repository),
		Tags:       tags,
		RetaggedAs: req.LocalTag,
	})
}

// RemoveImage — DELETE /docker/images/{image_name}/delete.
// Имена с "/" передаются URL-кодированными (library%2Fnginx).
func (h *APIHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "image_name"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректное имя образа")
		return
	}

	var req imageRemoveRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	if err := h.images.Remove(r.Context(), middleware.UsernameFromContext(r.Context()), name, req.Force, req.NoPrune); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления образа")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Образ %s удалён", name)})
}

// parseFilters разбирает фильтры вида "key=value" в карту для Docker API.
func parseFilters(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string][]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("фильтр %q: ожидается key=value", f)
		}
		filters[key] = append(filters[key], value)
	}
	return filters, nil
}
