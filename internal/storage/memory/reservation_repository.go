package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

// reservationRepositoryInMemory — in-memory хранилище складских резервов.
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.StockReservation
}

// NewReservationRepository возвращает in-memory хранилище резервов.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]domain.StockReservation),
	}
}

// Create сохраняет новый резерв, если ID ещё не занят.
func (r *reservationRepositoryInMemory) Create(reservation domain.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[reservation.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[reservation.ID] = reservation
	return nil
}

// Get возвращает резерв или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) Get(id string) (domain.StockReservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.items[id]
	if !ok {
		return domain.StockReservation{}, domain.ErrReservationNotFound
	}
	return reservation, nil
}

// ListByOrder возвращает резервы заказа в порядке создания.
func (r *reservationRepositoryInMemory) ListByOrder(orderID string) ([]domain.StockReservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockReservation, 0, len(r.items))
	for _, reservation := range r.items {
		if reservation.OrderID == orderID {
			result = append(result, reservation)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// UpdateStatus переводит резерв из from в to compare-and-set'ом под общим локом.
func (r *reservationRepositoryInMemory) UpdateStatus(id string, from, to domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reservation, ok := r.items[id]
	if !ok || reservation.Status != from {
		return domain.ErrReservationNotFound
	}
	reservation.Status = to
	reservation.UpdatedAt = time.Now().UTC()
	r.items[id] = reservation
	return nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
