// handler.go — основной обработчик API Container Manager.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/service"
)

// maxBodyBytes — предел размера JSON-тела запроса.
const maxBodyBytes = 1 << 20

// APIHandler — основной обработчик API Container Manager.
type APIHandler struct {
	health     *HealthHandler
	auth       *service.Authenticator
	quotas     *service.QuotaService
	images     *service.ImageService
	containers *service.ContainerService
	volumes    *service.VolumeService
	admin      *service.AdminService
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth *service.Authenticator,
	quotas *service.QuotaService,
	images *service.ImageService,
	containers *service.ContainerService,
	volumes *service.VolumeService,
	admin *service.AdminService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		auth:       auth,
		quotas:     quotas,
		images:     images,
		containers: containers,
		volumes:    volumes,
		admin:      admin,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает JSON-тело запроса в dst.
// Пустое тело допустимо, если optional: dst остаётся со значениями по умолчанию.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) && optional {
		return true
	}
	apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
	return false
}

// writeServiceError — единая точка отображения ошибок сервисного слоя в HTTP.
// Детали непредвиденных ошибок пишутся в лог, клиенту — только fallback.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		exceeded *service.RateLimitExceededError
		engErr   *service.EngineError
	)

	switch {
	case errors.As(err, &exceeded):
		apierrors.RateLimitExceeded(w, exceeded.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrAlreadyExists), errors.Is(err, service.ErrUsernameTaken):
		apierrors.AlreadyExists(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrEngineUnauthorized):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.As(err, &engErr):
		h.logger.Error(engErr.Message,
			slog.String("path", r.URL.Path),
			slog.String("error", engErr.Err.Error()),
		)
		apierrors.InternalError(w, engErr.Message)
	default:
		h.logger.Error(fallback,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fallback)
	}
}
