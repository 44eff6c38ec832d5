package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// ContainerEventRepository — интерфейс для журнала запусков user_containers.
type ContainerEventRepository interface {
	// Create добавляет событие запуска.
	Create(ctx context.Context, e *model.ContainerEvent) error
	// CountSince возвращает число событий пользователя с created_time >= since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	// List возвращает все события, новые первыми.
	List(ctx context.Context) ([]*model.ContainerEvent, error)
	// DeleteOlderThan удаляет события с created_time < cutoff
	// и возвращает число удалённых строк.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type containerEventRepo struct {
	db DBTX
}

// NewContainerEventRepository создаёт репозиторий журнала запусков.
func NewContainerEventRepository(db DBTX) ContainerEventRepository {
	return &containerEventRepo{db: db}
}

func (r *containerEventRepo) Create(ctx context.Context, e *model.ContainerEvent) error {
	query := `
		INSERT INTO user_containers (id, user_id, container_name, created_time)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, e.ID, e.UserID, e.ContainerName, e.CreatedTime); err != nil {
		return fmt.Errorf("ошибка записи события запуска: %w", err)
	}
	return nil
}

func (r *containerEventRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_containers WHERE user_id = $1 AND created_time >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта событий запуска: %w", err)
	}
	return count, nil
}

func (r *containerEventRepo) List(ctx context.Context) ([]*model.ContainerEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, container_name, created_time
		FROM user_containers
		ORDER BY created_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий запуска: %w", err)
	}
	defer rows.Close()

	result := []*model.ContainerEvent{}
	for rows.Next() {
		e := &model.ContainerEvent{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContainerName, &e.CreatedTime); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события запуска: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *containerEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_containers WHERE created_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки событий запуска: %w", err)
	}
	return tag.RowsAffected(), nil
}
