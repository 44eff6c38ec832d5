// containers.go — обработчики /docker/containers/* endpoints.
// Запуск и логи — любой аутентифицированный пользователь,
// список и управление состоянием — Admin.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// containerRunRequest — тело POST /docker/containers и /docker/containers/advanced.
type containerRunRequest struct {
	Image      string            `json:"image"`
	Command    stringList        `json:"command"`
	Name       string            `json:"name"`
	Env        []string          `json:"environment"`
	Labels     map[string]string `json:"labels"`
	WorkingDir string            `json:"working_dir"`
	User       flexString        `json:"user"`
	Tty        bool              `json:"tty"`
	StdinOpen  bool              `json:"stdin_open"`
	StopSignal string            `json:"stop_signal"`
	Platform   string            `json:"platform"`

	AutoRemove      bool                  `json:"auto_remove"`
	Privileged      bool                  `json:"privileged"`
	PublishAllPorts bool                  `json:"publish_all_ports"`
	ReadOnly        bool                  `json:"read_only"`
	Network         string                `json:"network"`
	NetworkMode     string                `json:"network_mode"`
	NetworkDisabled bool                  `json:"network_disabled"`
	MacAddress      string                `json:"mac_address"`
	Ports           map[string]flexString `json:"ports"`
	Volumes         map[string]volumeBind `json:"volumes"`
	VolumesFrom     []string              `json:"volumes_from"`
	Tmpfs           map[string]string     `json:"tmpfs"`
	Sysctls         map[string]flexString `json:"sysctls"`
	StorageOpt      map[string]flexString `json:"storage_opt"`
	SecurityOpt     []string              `json:"security_opt"`

	MemLimit       flexString `json:"mem_limit"`
	MemReservation flexString `json:"mem_reservation"`
	MemswapLimit   flexString `json:"memswap_limit"`
	MemSwappiness  *int64     `json:"mem_swappiness"`
	ShmSize        flexString `json:"shm_size"`
	NanoCPUs       int64      `json:"nano_cpus"`
	PidsLimit      *int64     `json:"pids_limit"`
	OomKillDisable bool       `json:"oom_kill_disable"`
	OomScoreAdj    int        `json:"oom_score_adj"`
	PidMode        string     `json:"pid_mode"`
	UsernsMode     string     `json:"userns_mode"`
	UTSMode        string     `json:"uts_mode"`
	Runtime        string     `json:"runtime"`
	VolumeDriver   string     `json:"volume_driver"`
	RestartPolicy  *struct {
		Name              string `json:"Name"`
		MaximumRetryCount int    `json:"MaximumRetryCount"`
	} `json:"restart_policy"`
}

// containerRunResponse — результат запуска.
type containerRunResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// containerListRequest — тело POST /docker/containers/list.
type containerListRequest struct {
	All     bool                  `json:"all"`
	Limit   *int                  `json:"limit"`
	Since   string                `json:"since"`
	Before  string                `json:"before"`
	Filters map[string]filterList `json:"filters"`
}

// containerSummaryResponse — элемент списка контейнеров.
type containerSummaryResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	State  string `json:"state"`
	Status string `json:"status"`
}

// containerLogsRequest — тело POST /docker/containers/{container_name}/logs.
type containerLogsRequest struct {
	Stdout     *bool      `json:"stdout"`
	Stderr     *bool      `json:"stderr"`
	Timestamps bool       `json:"timestamps"`
	Tail       flexString `json:"tail"`
	Since      flexString `json:"since"`
	Until      flexString `json:"until"`
	Follow     bool       `json:"follow"`
}

// containerLogsResponse — логи контейнера построчно.
type containerLogsResponse struct {
	Container string   `json:"container"`
	Logs      []string `json:"logs"`
	Message   string   `json:"message"`
}

// containerRemoveRequest — необязательное тело POST /docker/containers/{container_name}/delete.
type containerRemoveRequest struct {
	V     bool `json:"v"`
	Link  bool `json:"link"`
	Force bool `json:"force"`
}

// RunContainer — POST /docker/containers. Запуск с базовыми параметрами.
func (h *APIHandler) RunContainer(w http.ResponseWriter, r *http.Request) {
	h.runContainer(w, r, false)
}

// RunContainerAdvanced — POST /docker/containers/advanced. Запуск с полным набором параметров.
func (h *APIHandler) RunContainerAdvanced(w http.ResponseWriter, r *http.Request) {
	h.runContainer(w, r, true)
}

func (h *APIHandler) runContainer(w http.ResponseWriter, r *http.Request, advanced bool) {
	var body containerRunRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	req, err := body.toModel()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	h.logger.Debug("Запрос запуска контейнера",
		slog.String("user", username),
		slog.String("image", req.Image),
		slog.Bool("advanced", advanced),
	)

	result, err := h.containers.Run(r.Context(), username, req)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка запуска контейнера")
		return
	}

	writeJSON(w, http.StatusOK, containerRunResponse{
		Message: "Контейнер запущен",
		ID:      result.ID,
		Name:    result.Name,
		Status:  result.Status,
	})
}

func (b *containerRunRequest) toModel() (model.ContainerRunRequest, error) {
	binds, err := bindsFromVolumes(b.Volumes)
	if err != nil {
		return model.ContainerRunRequest{}, err
	}

	networkMode := b.NetworkMode
	if networkMode == "" {
		networkMode = b.Network
	}

	req := model.ContainerRunRequest{
		Image:           b.Image,
		Command:         b.Command,
		Name:            b.Name,
		Env:             b.Env,
		Labels:          b.Labels,
		WorkingDir:      b.WorkingDir,
		User:            string(b.User),
		Tty:             b.Tty,
		StdinOpen:       b.StdinOpen,
		StopSignal:      b.StopSignal,
		Platform:        b.Platform,
		AutoRemove:      b.AutoRemove,
		Privileged:      b.Privileged,
		PublishAllPorts: b.PublishAllPorts,
		ReadOnly:        b.ReadOnly,
		NetworkMode:     networkMode,
		NetworkDisabled: b.NetworkDisabled,
		MacAddress:      b.MacAddress,
		Ports:           flexMap(b.Ports),
		Volumes:         binds,
		VolumesFrom:     b.VolumesFrom,
		Tmpfs:           b.Tmpfs,
		Sysctls:         flexMap(b.Sysctls),
		StorageOpt:      flexMap(b.StorageOpt),
		SecurityOpt:     b.SecurityOpt,
		MemLimit:        string(b.MemLimit),
		MemReservation:  string(b.MemReservation),
		MemSwap:         string(b.MemswapLimit),
		MemSwappiness:   b.MemSwappiness,
		ShmSize:         string(b.ShmSize),
		NanoCPUs:        b.NanoCPUs,
		PidsLimit:       b.PidsLimit,
		OomKillDisable:  b.OomKillDisable,
		OomScoreAdj:     b.OomScoreAdj,
		PidMode:         b.PidMode,
		UsernsMode:      b.UsernsMode,
		UTSMode:         b.UTSMode,
		Runtime:         b.Runtime,
		VolumeDriver:    b.VolumeDriver,
	}
	if b.RestartPolicy != nil {
		req.RestartPolicy = &model.RestartPolicy{
			Name:              b.RestartPolicy.Name,
			MaximumRetryCount: b.RestartPolicy.MaximumRetryCount,
		}
	}
	return req, nil
}

// ListContainers — POST /docker/containers/list. Фильтры в теле запроса.
func (h *APIHandler) ListContainers(w http.ResponseWriter, r *http.Request) {
	var body containerListRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	req := model.ContainerListRequest{
		All:    body.All,
		Limit:  -1,
		Since:  body.Since,
		Before: body.Before,
	}
	if body.Limit != nil {
		req.Limit = *body.Limit
	}
	if len(body.Filters) > 0 {
		req.Filters = make(map[string][]string, len(body.Filters))
		for k, v := range body.Filters {
			req.Filters[k] = v
		}
	}

	list, err := h.containers.List(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка контейнеров")
		return
	}

	items := make([]containerSummaryResponse, len(list))
	for i, c := range list {
		items[i] = containerSummaryResponse{ID: c.ID, Name: c.Name, Image: c.Image, State: c.State, Status: c.Status}
	}
	writeJSON(w, http.StatusOK, items)
}

// StartContainer — POST /docker/containers/{container_name}/start.
func (h *APIHandler) StartContainer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "container_name")

	if err := h.containers.Start(r.Context(), name); err != nil {
		h.writeServiceError(w, r, err, "Ошибка запуска контейнера")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Контейнер " + name + " запущен"})
}

// StopContainer — POST /docker/containers/{container_name}/stop?timeout=S.
func (h *APIHandler) StopContainer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "container_name")

	var timeout *int
	if err := runtime.BindQueryParameter("form", true, false, "timeout", r.URL.Query(), &timeout); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр timeout: "+err.Error())
		return
	}

	if err := h.containers.Stop(r.Context(), name, timeout); err != nil {
		h.writeServiceError(w, r, err, "Ошибка остановки контейнера")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Контейнер " + name + " остановлен"})
}

// ContainerLogs — POST /docker/containers/{container_name}/logs.
// По умолчанию stdout и stderr, tail=all.
func (h *APIHandler) ContainerLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "container_name")

	var body containerLogsRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	req := model.ContainerLogsRequest{
		Stdout:     body.Stdout == nil || *body.Stdout,
		Stderr:     body.Stderr == nil || *body.Stderr,
		Timestamps: body.Timestamps,
		Tail:       string(body.Tail),
		Since:      string(body.Since),
		Until:      string(body.Until),
	}

	lines, err := h.containers.Logs(r.Context(), name, req, body.Follow)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения логов контейнера")
		return
	}

	writeJSON(w, http.StatusOK, containerLogsResponse{
		Container: name,
		Logs:      lines,
		Message:   "Логи получены",
	})
}

// RemoveContainer — POST /docker/containers/{container_name}/delete.
func (h *APIHandler) RemoveContainer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "container_name")

	var body containerRemoveRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	err := h.containers.Remove(r.Context(), name, model.ContainerRemoveRequest{
		RemoveVolumes: body.V,
		RemoveLinks:   body.Link,
		Force:         body.Force,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления контейнера")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Контейнер " + name + " удалён"})
}
