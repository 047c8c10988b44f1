package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

// productRepositoryInMemory — in-memory реализация каталога с условной
// записью стока. Мьютекс делает сравнение версии и запись одной атомарной
// операцией — тем самым условным update, которого требует Stock Ledger.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// ApplyStockChange выполняет версионную условную запись количества.
func (r *productRepositoryInMemory) ApplyStockChange(id string, newOnHand int32, expectedVersion int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if product.Version != expectedVersion {
		return 0, domain.ErrVersionConflict
	}
	if newOnHand < 0 {
		return 0, domain.ErrInsufficientStock
	}

	product.OnHand = newOnHand
	product.Version++
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return product.Version, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
