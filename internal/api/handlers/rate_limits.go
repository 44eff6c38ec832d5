// rate_limits.go — обработчики /rate-limit/{user_id} endpoints.
// Квоты пользователей: чтение, создание, обновление. Доступ: Admin.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// rateLimitResponse — квота пользователя.
type rateLimitResponse struct {
	UserID     string    `json:"user_id"`
	Limit      int       `json:"limit"`
	TimeWindow int       `json:"time_window"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"reset_time"`
	LastReset  time.Time `json:"last_reset"`
	CreatedAt  time.Time `json:"created_at"`
}

func mapRateLimit(rl *model.RateLimitConfig) rateLimitResponse {
	return rateLimitResponse{
		UserID:     rl.UserID,
		Limit:      rl.Limit,
		TimeWindow: rl.TimeWindow,
		Remaining:  rl.Remaining,
		ResetTime:  rl.ResetTime,
		LastReset:  rl.LastReset,
		CreatedAt:  rl.CreatedAt,
	}
}

// GetRateLimit — GET /rate-limit/{user_id}.
func (h *APIHandler) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	rl, err := h.quotas.Get(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения квоты")
		return
	}

	writeJSON(w, http.StatusOK, mapRateLimit(rl))
}

// SetRateLimit — POST /rate-limit/{user_id}/set?limit=N&time_window=S.
// Создаёт квоту, повторное создание — 400 ALREADY_EXISTS.
func (h *APIHandler) SetRateLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit, timeWindow, ok := quotaParams(w, r)
	if !ok {
		return
	}

	if err := h.quotas.Set(r.Context(), userID, limit, timeWindow); err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания квоты")
		return
	}

	h.logger.Info("Квота создана",
		slog.String("user_id", userID),
		slog.String("by", middleware.UsernameFromContext(r.Context())),
	)
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Квота установлена"})
}

// UpdateRateLimit — PUT /rate-limit/{user_id}/update?limit=N&time_window=S.
func (h *APIHandler) UpdateRateLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit, timeWindow, ok := quotaParams(w, r)
	if !ok {
		return
	}

	if err := h.quotas.Update(r.Context(), userID, limit, timeWindow); err != nil {
		h.writeServiceError(w, r, err, "Ошибка обновления квоты")
		return
	}

	h.logger.Info("Квота обновлена",
		slog.String("user_id", userID),
		slog.String("by", middleware.UsernameFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Квота обновлена"})
}

// quotaParams извлекает обязательные limit и time_window из query.
func quotaParams(w http.ResponseWriter, r *http.Request) (limit, timeWindow int, ok bool) {
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, true, "limit", query, &limit); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit: "+err.Error())
		return 0, 0, false
	}
	if err := runtime.BindQueryParameter("form", true, true, "time_window", query, &timeWindow); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр time_window: "+err.Error())
		return 0, 0, false
	}
	return limit, timeWindow, true
}
