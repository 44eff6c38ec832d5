package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// RateLimitRepository — интерфейс для таблицы rate_limits.
type RateLimitRepository interface {
	// Create добавляет квоту. Существующая запись для user_id — ErrConflict.
	Create(ctx context.Context, rl *model.RateLimitConfig) error
	// GetByUserID возвращает квоту или ErrNotFound.
	GetByUserID(ctx context.Context, userID string) (*model.RateLimitConfig, error)
	// Update перезаписывает limit, time_window, remaining, reset_time, last_reset.
	// Отсутствие записи — ErrNotFound.
	Update(ctx context.Context, rl *model.RateLimitConfig) error
}

type rateLimitRepo struct {
	db DBTX
}

// NewRateLimitRepository создаёт репозиторий квот.
func NewRateLimitRepository(db DBTX) RateLimitRepository {
	return &rateLimitRepo{db: db}
}

func (r *rateLimitRepo) Create(ctx context.Context, rl *model.RateLimitConfig) error {
	query := `
		INSERT INTO rate_limits (user_id, "limit", time_window, remaining, reset_time, last_reset, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		rl.UserID, rl.Limit, rl.TimeWindow, rl.Remaining,
		rl.ResetTime, rl.LastReset, rl.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания квоты: %w", err)
	}
	return nil
}

func (r *rateLimitRepo) GetByUserID(ctx context.Context, userID string) (*model.RateLimitConfig, error) {
	query := `
		SELECT user_id, "limit", time_window, remaining, reset_time, last_reset, created_at
		FROM rate_limits
		WHERE user_id = $1`

	rl := &model.RateLimitConfig{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&rl.UserID, &rl.Limit, &rl.TimeWindow, &rl.Remaining,
		&rl.ResetTime, &rl.LastReset, &rl.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения квоты: %w", err)
	}
	return rl, nil
}

func (r *rateLimitRepo) Update(ctx context.Context, rl *model.RateLimitConfig) error {
	query := `
		UPDATE rate_limits SET
			"limit" = $2,
			time_window = $3,
			remaining = $4,
			reset_time = $5,
			last_reset = $6
		WHERE user_id = $1
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		rl.UserID, rl.Limit, rl.TimeWindow, rl.Remaining, rl.ResetTime, rl.LastReset,
	).Scan(&rl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления квоты: %w", err)
	}
	return nil
}
