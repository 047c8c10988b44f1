package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий заказов для локальной
// разработки и тестов. Наружу всегда отдаются копии, мутации возвращённых
// заказов не влияют на хранилище.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{orders: make(map[string]domain.Order)}
}

// Create сохраняет новый заказ. Повторный ID считается конфликтом версий.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrVersionConflict
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента от новых к старым. При limit > 0
// выборка усекается.
func (r *orderRepositoryInMemory) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Order
	for _, order := range r.orders {
		if order.CustomerID == customerID {
			matched = append(matched, cloneOrder(order))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []domain.Order{}
	}
	return matched, nil
}

// Save перезаписывает заказ при совпадении версии и инкрементирует её.
// Несовпадение означает конкурентный переход статуса того же заказа и
// возвращается как конфликт, а не затирается.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrVersionConflict
	}

	order.Version++
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// cloneOrder делает глубокую копию изменяемых частей заказа.
func cloneOrder(order domain.Order) domain.Order {
	clone := order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Delivery != nil {
		delivery := *order.Delivery
		clone.Delivery = &delivery
	}
	if order.Invoice != nil {
		invoice := *order.Invoice
		clone.Invoice = &invoice
	}
	return clone
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
