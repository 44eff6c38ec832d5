// admin.go — обработчики /admin/* endpoints.
// Пользователи: список, получение, удаление. Журнал запусков контейнеров.
// Доступ: Admin.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// userResponse — пользователь без хеша пароля.
type userResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// containerEventResponse — запись журнала запусков.
type containerEventResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ContainerName string    `json:"container_name"`
	CreatedTime   time.Time `json:"created_time"`
}

// ListUsers — GET /admin/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetUser — GET /admin/users/{username}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.admin.GetUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения пользователя")
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// DeleteUser — DELETE /admin/users/{username}/delete.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.admin.DeleteUser(r.Context(), username, middleware.UsernameFromContext(r.Context())); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления пользователя")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Пользователь " + username + " удалён"})
}

// ListContainerEvents — GET /admin/containers. Журнал запусков, новые первыми.
func (h *APIHandler) ListContainerEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.admin.ListContainerEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения журнала запусков")
		return
	}

	items := make([]containerEventResponse, len(events))
	for i, e := range events {
		items[i] = containerEventResponse{
			ID:            e.ID,
			UserID:        e.UserID,
			ContainerName: e.ContainerName,
			CreatedTime:   e.CreatedTime,
		}
	}
	writeJSON(w, http.StatusOK, items)
}
