package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

// cartRepositoryInMemory — in-memory хранилище сессионных корзин.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		items: make(map[string]domain.Cart),
	}
}

// Get возвращает корзину или ErrCartNotFound, если её нет.
func (r *cartRepositoryInMemory) Get(id string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

// Save перезаписывает корзину целиком и обновляет UpdatedAt.
func (r *cartRepositoryInMemory) Save(cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart.UpdatedAt = time.Now().UTC()
	r.items[cart.ID] = cloneCart(cart)
	return nil
}

// Delete удаляет корзину; отсутствие записи ошибкой не считается.
func (r *cartRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

// DeleteStale удаляет корзины, не менявшиеся с момента before.
func (r *cartRepositoryInMemory) DeleteStale(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	for id, cart := range r.items {
		if cart.UpdatedAt.Before(before) {
			delete(r.items, id)
			deleted++
			if deleted >= limit {
				break
			}
		}
	}
	return deleted, nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	clone := cart
	clone.Lines = append([]domain.CartLine(nil), cart.Lines...)
	return clone
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
