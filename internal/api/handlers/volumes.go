// volumes.go — обработчики /docker/volumes/* endpoints. Доступ: Admin.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// volumeCreateRequest — тело POST /docker/volumes/create.
type volumeCreateRequest struct {
	Name       string                `json:"name"`
	Driver     string                `json:"driver"`
	DriverOpts map[string]flexString `json:"driver_opts"`
	Labels     map[string]string     `json:"labels"`
}

// volumeResponse — созданный том.
type volumeResponse struct {
	Message    string            `json:"message"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint,omitempty"`
	Labels     map[string]string `json:"labels"`
}

// volumeRemoveRequest — необязательное тело DELETE /docker/volumes/{volume_name}/delete.
type volumeRemoveRequest struct {
	Force bool `json:"force"`
}

// CreateVolume — POST /docker/volumes/create. Пустое имя — Docker генерирует своё.
func (h *APIHandler) CreateVolume(w http.ResponseWriter, r *http.Request) {
	var body volumeCreateRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	vol, err := h.volumes.Create(r.Context(), middleware.UsernameFromContext(r.Context()), model.VolumeCreateRequest{
		Name:       body.Name,
		Driver:     body.Driver,
		DriverOpts: flexMap(body.DriverOpts),
		Labels:     body.Labels,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания тома")
		return
	}

	writeJSON(w, http.StatusCreated, volumeResponse{
		Message:    "Том " + vol.Name + " создан",
		Name:       vol.Name,
		Driver:     vol.Driver,
		Mountpoint: vol.Mountpoint,
		Labels:     vol.Labels,
	})
}

// RemoveVolume — DELETE /docker/volumes/{volume_name}/delete.
func (h *APIHandler) RemoveVolume(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "volume_name")

	var body volumeRemoveRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	if err := h.volumes.Remove(r.Context(), middleware.UsernameFromContext(r.Context()), name, body.Force); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления тома")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Том " + name + " удалён"})
}
