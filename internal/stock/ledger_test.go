package stock

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*Ledger, domain.ProductRepository, domain.ReservationRepository) {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	products := memory.NewProductRepository()
	reservations := memory.NewReservationRepository()
	ledger := NewLedger(
		products,
		reservations,
		WithLogger(logger.WithField("component", "stock-test")),
		WithRetry(10, time.Millisecond),
	)
	return ledger, products, reservations
}

func seedProduct(t *testing.T, products domain.ProductRepository, id string, onHand int32) domain.Product {
	t.Helper()

	now := time.Now().UTC()
	product := domain.Product{
		ID:         id,
		Title:      "Test Product",
		Media:      domain.MediaTypeBook,
		PriceMinor: 10_000,
		OnHand:     onHand,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := products.Create(product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestLedger_ReserveDecrementsStock(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	product := seedProduct(t, products, "p1", 5)

	reservation, err := ledger.Reserve(product.ID, 2, product.Version, "order-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Qty != 2 || reservation.OrderID != "order-1" {
		t.Fatalf("unexpected reservation: %+v", reservation)
	}
	if !reservation.Active() {
		t.Fatal("new reservation must be active")
	}

	got, err := products.Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.OnHand != 3 {
		t.Fatalf("on hand = %d, want 3", got.OnHand)
	}
	if got.Version != product.Version+1 {
		t.Fatalf("version = %d, want %d", got.Version, product.Version+1)
	}
}

func TestLedger_ReserveStaleVersion(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	product := seedProduct(t, products, "p1", 5)

	if _, err := ledger.Reserve(product.ID, 1, product.Version, "order-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := ledger.Reserve(product.ID, 1, product.Version, "order-2")
	if !domain.IsVersionConflict(err) {
		t.Fatalf("stale version must yield ErrVersionConflict, got %v", err)
	}
}

func TestLedger_ReserveInsufficientStock(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	product := seedProduct(t, products, "p1", 1)

	_, err := ledger.Reserve(product.ID, 2, product.Version, "order-1")
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var insufficientErr *domain.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("error must carry product ids: %v", err)
	}
	if len(insufficientErr.ProductIDs) != 1 || insufficientErr.ProductIDs[0] != "p1" {
		t.Fatalf("unexpected product ids: %v", insufficientErr.ProductIDs)
	}

	// Отказ не затрагивает сток.
	got, _ := products.Get(product.ID)
	if got.OnHand != 1 || got.Version != product.Version {
		t.Fatalf("failed reserve must not mutate product: %+v", got)
	}
}

func TestLedger_ReserveInvalidQty(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	product := seedProduct(t, products, "p1", 5)

	if _, err := ledger.Reserve(product.ID, 0, product.Version, "order-1"); !errors.Is(err, domain.ErrQtyInvalid) {
		t.Fatalf("zero qty must be rejected, got %v", err)
	}
	if _, err := ledger.Reserve(product.ID, -1, product.Version, "order-1"); !errors.Is(err, domain.ErrQtyInvalid) {
		t.Fatalf("negative qty must be rejected, got %v", err)
	}
}

func TestLedger_CheckAvailability(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	seedProduct(t, products, "p1", 3)

	availability, err := ledger.CheckAvailability("p1", 3)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if !availability.Available || availability.OnHand != 3 {
		t.Fatalf("unexpected availability: %+v", availability)
	}

	availability, err = ledger.CheckAvailability("p1", 4)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if availability.Available {
		t.Fatal("qty above on-hand must be unavailable")
	}

	// Удалённый из каталога товар — просто «нет в наличии», не ошибка.
	availability, err = ledger.CheckAvailability("ghost", 1)
	if err != nil {
		t.Fatalf("check availability for missing product: %v", err)
	}
	if availability.Available || availability.OnHand != 0 {
		t.Fatalf("missing product must be unavailable: %+v", availability)
	}
}

func TestLedger_ReleaseIsIdempotent(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	product := seedProduct(t, products, "p1", 5)

	reservation, err := ledger.Reserve(product.ID, 2, product.Version, "order-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Release(reservation.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := products.Get(product.ID)
	if got.OnHand != 5 {
		t.Fatalf("release must restore stock, on hand = %d", got.OnHand)
	}

	// Повторный release ничего не меняет.
	if err := ledger.Release(reservation.ID); err != nil {
		t.Fatalf("second release: %v", err)
	}
	got, _ = products.Get(product.ID)
	if got.OnHand != 5 {
		t.Fatalf("double release must not double-restore, on hand = %d", got.OnHand)
	}
}

func TestLedger_CommitKeepsStock(t *testing.T) {
	ledger, products, reservations := newTestLedger(t)
	product := seedProduct(t, products, "p1", 5)

	reservation, err := ledger.Reserve(product.ID, 2, product.Version, "order-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Commit(reservation.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, _ := products.Get(product.ID)
	if got.OnHand != 3 {
		t.Fatalf("commit must not change stock, on hand = %d", got.OnHand)
	}

	committed, err := reservations.Get(reservation.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if committed.Status != domain.ReservationStatusCommitted {
		t.Fatalf("status = %s, want committed", committed.Status)
	}

	// Commit идемпотентен, release закоммиченного резерва — no-op.
	if err := ledger.Commit(reservation.ID); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if err := ledger.Release(reservation.ID); err != nil {
		t.Fatalf("release committed: %v", err)
	}
	got, _ = products.Get(product.ID)
	if got.OnHand != 3 {
		t.Fatalf("release of committed reservation must not restore stock, on hand = %d", got.OnHand)
	}
}

func TestLedger_OrderWideReleaseAndCommit(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	first := seedProduct(t, products, "p1", 4)
	second := seedProduct(t, products, "p2", 4)

	if _, err := ledger.Reserve(first.ID, 1, first.Version, "order-1"); err != nil {
		t.Fatalf("reserve p1: %v", err)
	}
	if _, err := ledger.Reserve(second.ID, 2, second.Version, "order-1"); err != nil {
		t.Fatalf("reserve p2: %v", err)
	}

	active, err := ledger.ActiveReservations("order-1")
	if err != nil {
		t.Fatalf("active reservations: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active reservations = %d, want 2", len(active))
	}

	if err := ledger.ReleaseOrder("order-1"); err != nil {
		t.Fatalf("release order: %v", err)
	}
	active, _ = ledger.ActiveReservations("order-1")
	if len(active) != 0 {
		t.Fatalf("after release active = %d, want 0", len(active))
	}

	got, _ := products.Get(first.ID)
	if got.OnHand != 4 {
		t.Fatalf("p1 stock must be restored, on hand = %d", got.OnHand)
	}
}

// Конкурентная гонка за последние единицы: при K единицах стока успешных
// резервов должно быть ровно K, остальные попытки получают отказ по стоку.
func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ledger, products, _ := newTestLedger(t)

	const (
		onHand  = 20
		workers = 60
	)
	seedProduct(t, products, "hot", onHand)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			_, err := ledger.ReserveWithRetry("hot", 1, fmt.Sprintf("order-%d", worker))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsInsufficientStock(err):
				insufficient++
			case domain.IsVersionConflict(err):
				// Исчерпанный retry-бюджет допустим, оверселл — нет.
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded > onHand {
		t.Fatalf("oversell: %d successful reserves for %d units", succeeded, onHand)
	}

	got, err := products.Get("hot")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if int(got.OnHand) != onHand-succeeded {
		t.Fatalf("on hand = %d, want %d", got.OnHand, onHand-succeeded)
	}
	if succeeded < onHand && insufficient == 0 {
		t.Fatalf("with %d successes out of %d units some attempts must fail on stock", succeeded, onHand)
	}
}

// Сценарий «две корзины на троих»: 3 единицы, два покупателя по 2 —
// второй получает отказ по стоку, а не оверселл.
func TestLedger_LastUnitsContention(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	seedProduct(t, products, "rare", 3)

	if _, err := ledger.ReserveWithRetry("rare", 2, "order-a"); err != nil {
		t.Fatalf("first buyer: %v", err)
	}

	_, err := ledger.ReserveWithRetry("rare", 2, "order-b")
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("second buyer must fail on stock, got %v", err)
	}

	got, _ := products.Get("rare")
	if got.OnHand != 1 {
		t.Fatalf("on hand = %d, want 1", got.OnHand)
	}
}

func TestLedger_ReserveWithRetryMissingProduct(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.ReserveWithRetry("ghost", 1, "order-1")
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("missing product must read as insufficient stock, got %v", err)
	}
}

// flakyProductRepository пропускает вызовы в обёрнутый репозиторий, пока не
// взведён fail: с этого момента ApplyStockChange возвращает заданную ошибку.
type flakyProductRepository struct {
	domain.ProductRepository
	mu   sync.Mutex
	fail error
}

func (r *flakyProductRepository) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *flakyProductRepository) ApplyStockChange(id string, newOnHand int32, expectedVersion int64) (int64, error) {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return 0, fail
	}
	return r.ProductRepository.ApplyStockChange(id, newOnHand, expectedVersion)
}

// Отказ хранилища при возврате количества не глотается: Release отдаёт
// ошибку, резерв остаётся активным, и повторный Release доводит снятие
// до конца после восстановления хранилища.
func TestLedger_ReleaseRestoreFailureIsNotSwallowed(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	products := &flakyProductRepository{ProductRepository: memory.NewProductRepository()}
	reservations := memory.NewReservationRepository()
	ledger := NewLedger(
		products,
		reservations,
		WithLogger(logger.WithField("component", "stock-test")),
		WithRetry(3, time.Millisecond),
	)

	product := seedProduct(t, products, "p1", 5)
	reservation, err := ledger.Reserve(product.ID, 2, product.Version, "order-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	storeDown := errors.New("storage down")
	products.setFail(storeDown)

	if err := ledger.Release(reservation.ID); !errors.Is(err, storeDown) {
		t.Fatalf("failed restore must surface the error, got %v", err)
	}

	// Резерв всё ещё удерживает сток, количество не потеряно и не
	// возвращено частично.
	kept, _ := reservations.Get(reservation.ID)
	if !kept.Active() {
		t.Fatalf("reservation must stay active after failed restore, status = %s", kept.Status)
	}
	got, _ := products.Get(product.ID)
	if got.OnHand != 3 {
		t.Fatalf("on hand = %d, want 3", got.OnHand)
	}

	products.setFail(nil)
	if err := ledger.Release(reservation.ID); err != nil {
		t.Fatalf("retried release: %v", err)
	}
	got, _ = products.Get(product.ID)
	if got.OnHand != 5 {
		t.Fatalf("on hand after retried release = %d, want 5", got.OnHand)
	}
	released, _ := reservations.Get(reservation.ID)
	if released.Status != domain.ReservationStatusReleased {
		t.Fatalf("status = %s, want released", released.Status)
	}
}
