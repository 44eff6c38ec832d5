// retention.go — периодическая очистка журнала запусков контейнеров.
//
// EventPurger запускает фоновую горутину с ticker (CM_EVENT_PURGE_INTERVAL)
// и удаляет события user_containers старше срока хранения (CM_EVENT_RETENTION).
// Срок хранения не бывает короче окна ограничения запусков, поэтому очистка
// не влияет на решения WindowLimiter.
//
// Prometheus-метрики:
//   - cm_container_events_purged_total — количество удалённых событий
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/container-manager/internal/repository"
)

var eventsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cm_container_events_purged_total",
	Help: "Количество удалённых устаревших событий запуска контейнеров",
})

// EventPurger — фоновая очистка устаревших событий запуска.
type EventPurger struct {
	events    repository.ContainerEventRepository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventPurger создаёт сервис очистки. retention меньше Window
// поднимается до Window. now — источник времени (nil — time.Now).
func NewEventPurger(
	events repository.ContainerEventRepository,
	retention, interval time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *EventPurger {
	if retention < Window {
		retention = Window
	}
	if now == nil {
		now = time.Now
	}
	return &EventPurger{
		events:    events,
		retention: retention,
		interval:  interval,
		now:       now,
		logger:    logger.With(slog.String("component", "event_purger")),
	}
}

// Retention возвращает действующий срок хранения.
func (p *EventPurger) Retention() time.Duration {
	return p.retention
}

// Start запускает фоновую горутину. Первая очистка — сразу при старте.
func (p *EventPurger) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		p.logger.Info("Очистка журнала запусков запущена",
			slog.String("retention", p.retention.String()),
			slog.String("interval", p.interval.String()),
		)
		p.purge(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Очистка журнала запусков остановлена")
				return
			case <-ticker.C:
				p.purge(ctx)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (p *EventPurger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// PurgeOnce удаляет события старше срока хранения и возвращает их число.
func (p *EventPurger) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	eventsPurgedTotal.Add(float64(deleted))
	return deleted, nil
}

func (p *EventPurger) purge(ctx context.Context) {
	deleted, err := p.PurgeOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Ошибка очистки журнала запусков", slog.String("error", err.Error()))
		}
		return
	}
	if deleted > 0 {
		p.logger.Info("Удалены устаревшие события запуска", slog.Int64("deleted", deleted))
	}
}
