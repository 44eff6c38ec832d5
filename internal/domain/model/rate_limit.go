package model

import "time"

// RateLimitConfig — административно заданная квота пользователя.
// Хранится в таблице rate_limits, не более одной записи на user_id.
type RateLimitConfig struct {
	UserID string
	// Limit — число разрешённых операций за окно (> 0)
	Limit int
	// TimeWindow — длина окна в секундах
	TimeWindow int
	// Remaining — остаток квоты (>= 0)
	Remaining int
	ResetTime time.Time
	LastReset time.Time
	CreatedAt time.Time
}

// ContainerEvent — запись о запуске контейнера пользователем.
// Только добавляется; удаляется лишь фоновой очисткой по сроку хранения.
type ContainerEvent struct {
	// ID — UUID записи
	ID            string
	UserID        string
	ContainerName string
	CreatedTime   time.Time
}
