// rate_limits.go — квоты пользователей и ограничение запусков контейнеров.
//
// Два независимых механизма:
//   - QuotaService — административные записи rate_limits (get/set/update),
//     автоматически не применяются;
//   - WindowLimiter — скользящее окно в один час по журналу user_containers
//     с общим для всех пользователей порогом.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/repository"
)

// Window — длина окна ограничения запусков контейнеров.
const Window = time.Hour

var (
	// windowRejectionsTotal — отказы в запуске контейнера по лимиту.
	windowRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_container_rate_limit_rejections_total",
		Help: "Количество отказов в запуске контейнера из-за превышения лимита за час",
	})

	// containerEventsTotal — записанные события запуска контейнеров.
	containerEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_container_events_recorded_total",
		Help: "Количество записанных событий запуска контейнеров",
	})
)

// --- QuotaService ---

// QuotaService — управление записями квот rate_limits.
type QuotaService struct {
	repo   repository.RateLimitRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewQuotaService создаёт сервис квот. now — источник времени (nil — time.Now).
func NewQuotaService(repo repository.RateLimitRepository, now func() time.Time, logger *slog.Logger) *QuotaService {
	if now == nil {
		now = time.Now
	}
	return &QuotaService{
		repo:   repo,
		now:    now,
		logger: logger.With(slog.String("component", "quota_service")),
	}
}

// Get возвращает запись квоты или ErrNotFound.
func (s *QuotaService) Get(ctx context.Context, userID string) (*model.RateLimitConfig, error) {
	rl, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: квота для %s не задана", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("получение квоты: %w", err)
	}
	return rl, nil
}

// Set создаёт запись квоты: remaining = limit, все метки времени — сейчас.
// Существующая запись — ErrAlreadyExists, запись не меняется.
func (s *QuotaService) Set(ctx context.Context, userID string, limit, timeWindow int) error {
	if err := validateQuota(userID, limit, timeWindow); err != nil {
		return err
	}

	now := s.now().UTC()
	rl := &model.RateLimitConfig{
		UserID:     userID,
		Limit:      limit,
		TimeWindow: timeWindow,
		Remaining:  limit,
		ResetTime:  now,
		LastReset:  now,
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, rl); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: квота для %s уже задана", ErrAlreadyExists, userID)
		}
		return fmt.Errorf("создание квоты: %w", err)
	}

	s.logger.Info("Квота задана",
		slog.String("user_id", userID),
		slog.Int("limit", limit),
		slog.Int("time_window", timeWindow),
	)
	return nil
}

// Update перезаписывает limit и time_window, сбрасывает remaining и метки времени.
// Нет записи — ErrNotFound.
func (s *QuotaService) Update(ctx context.Context, userID string, limit, timeWindow int) error {
	if err := validateQuota(userID, limit, timeWindow); err != nil {
		return err
	}

	now := s.now().UTC()
	rl := &model.RateLimitConfig{
		UserID:     userID,
		Limit:      limit,
		TimeWindow: timeWindow,
		Remaining:  limit,
		ResetTime:  now,
		LastReset:  now,
	}
	if err := s.repo.Update(ctx, rl); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: квота для %s не задана", ErrNotFound, userID)
		}
		return fmt.Errorf("обновление квоты: %w", err)
	}

	s.logger.Info("Квота обновлена",
		slog.String("user_id", userID),
		slog.Int("limit", limit),
		slog.Int("time_window", timeWindow),
	)
	return nil
}

func validateQuota(userID string, limit, timeWindow int) error {
	if userID == "" {
		return validationError("user_id обязателен")
	}
	if limit <= 0 {
		return validationError("limit должен быть положительным")
	}
	if timeWindow <= 0 {
		return validationError("time_window должен быть положительным")
	}
	return nil
}

// --- WindowLimiter ---

// WindowLimiter — ограничение числа запусков контейнеров пользователя
// за последний час. Проверка не записывает событие: Record вызывается
// только после успешного запуска.
type WindowLimiter struct {
	events repository.ContainerEventRepository
	max    int
	now    func() time.Time
	logger *slog.Logger
}

// NewWindowLimiter создаёт ограничитель с порогом maxPerHour.
// now — источник времени (nil — time.Now).
func NewWindowLimiter(
	events repository.ContainerEventRepository,
	maxPerHour int,
	now func() time.Time,
	logger *slog.Logger,
) *WindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &WindowLimiter{
		events: events,
		max:    maxPerHour,
		now:    now,
		logger: logger.With(slog.String("component", "window_limiter")),
	}
}

// Limit возвращает порог запусков за час.
func (l *WindowLimiter) Limit() int {
	return l.max
}

// CheckAndAdmit считает события пользователя с created_time >= now - 1h.
// При count >= порога — *RateLimitExceededError.
func (l *WindowLimiter) CheckAndAdmit(ctx context.Context, userID string) error {
	since := l.now().UTC().Add(-Window)

	count, err := l.events.CountSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("подсчёт запусков контейнеров: %w", err)
	}

	if count >= l.max {
		windowRejectionsTotal.Inc()
		l.logger.Warn("Превышен лимит запусков контейнеров",
			slog.String("user_id", userID),
			slog.Int("count", count),
			slog.Int("limit", l.max),
		)
		return &RateLimitExceededError{Limit: l.max}
	}
	return nil
}

// Record записывает событие запуска контейнера.
func (l *WindowLimiter) Record(ctx context.Context, userID, containerName string) error {
	event := &model.ContainerEvent{
		ID:            uuid.NewString(),
		UserID:        userID,
		ContainerName: containerName,
		CreatedTime:   l.now().UTC(),
	}
	if err := l.events.Create(ctx, event); err != nil {
		return fmt.Errorf("запись события запуска: %w", err)
	}
	containerEventsTotal.Inc()
	return nil
}
