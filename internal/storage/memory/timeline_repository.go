package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

type timelineRepositoryInMemory struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory хронику заказов для разработки
// и тестов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в хронику заказа. Пустое время события
// заменяется текущим, как и в PostgreSQL-реализации.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byOrder[event.OrderID] = append(r.byOrder[event.OrderID], event)
	return nil
}

// List возвращает копию событий заказа от старых к новым.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	timeline := make([]domain.TimelineEvent, len(r.byOrder[orderID]))
	copy(timeline, r.byOrder[orderID])

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Occurred.Before(timeline[j].Occurred)
	})
	return timeline, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
