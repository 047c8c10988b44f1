package checkout

import (
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/pricing"
	"github.com/vladislavdragonenkov/mediashop/internal/stock"
	"github.com/vladislavdragonenkov/mediashop/internal/storage/memory"
)

type pipelineFixture struct {
	pipeline *Pipeline
	carts    domain.CartRepository
	products domain.ProductRepository
	orders   domain.OrderRepository
	ledger   *stock.Ledger
	outbox   *outboxStub
}

type outboxStub struct {
	messages []domain.OutboxMessage
}

func (s *outboxStub) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *outboxStub) PullPending(limit int) ([]domain.OutboxMessage, error) { return nil, nil }
func (s *outboxStub) Stats() (domain.OutboxStats, error)                   { return domain.OutboxStats{}, nil }
func (s *outboxStub) MarkSent(id string) error                             { return nil }
func (s *outboxStub) MarkFailed(id string) error                           { return nil }

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	carts := memory.NewCartRepository()
	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()
	reservations := memory.NewReservationRepository()
	ledger := stock.NewLedger(products, reservations, stock.WithLogger(logger.WithField("c", "ledger")))
	outbox := &outboxStub{}

	pipeline := NewPipeline(
		carts,
		products,
		orders,
		ledger,
		pricing.NewEngine(pricing.DefaultConfig()),
		WithLogger(logger.WithField("c", "checkout")),
		WithOutbox(outbox),
	)

	return &pipelineFixture{
		pipeline: pipeline,
		carts:    carts,
		products: products,
		orders:   orders,
		ledger:   ledger,
		outbox:   outbox,
	}
}

func (f *pipelineFixture) seedProduct(t *testing.T, id string, price int64, onHand int32, rush bool) {
	t.Helper()

	now := time.Now().UTC()
	err := f.products.Create(domain.Product{
		ID:           id,
		Title:        "Title " + id,
		Media:        domain.MediaTypeBook,
		PriceMinor:   price,
		OnHand:       onHand,
		Version:      1,
		RushEligible: rush,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func (f *pipelineFixture) seedCart(t *testing.T, id string, lines ...domain.CartLine) {
	t.Helper()

	if err := f.carts.Save(domain.Cart{ID: id, Lines: lines}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func TestPipeline_ConvertSuccess(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedProduct(t, "p1", 50_000, 10, false)
	f.seedProduct(t, "p2", 40_000, 5, true)
	f.seedCart(t, "cart-1",
		domain.CartLine{ProductID: "p1", Qty: 2},
		domain.CartLine{ProductID: "p2", Qty: 1},
	)

	order, err := f.pipeline.Convert("cart-1", "customer-1")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if order.Status != domain.OrderStatusPendingDeliveryInfo {
		t.Fatalf("status = %s, want pending_delivery_info", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	if order.Totals.SubtotalExclVAT != 140_000 {
		t.Fatalf("subtotal = %d, want 140000", order.Totals.SubtotalExclVAT)
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("invariant violations: %v", errs)
	}

	// Цены и rush-флаги заморожены из каталога.
	for _, item := range order.Items {
		switch item.ProductID {
		case "p1":
			if item.PriceMinor != 50_000 || item.RushEligible {
				t.Fatalf("p1 item not frozen correctly: %+v", item)
			}
		case "p2":
			if item.PriceMinor != 40_000 || !item.RushEligible {
				t.Fatalf("p2 item not frozen correctly: %+v", item)
			}
		}
	}

	// Сток списан, резервы активны.
	p1, _ := f.products.Get("p1")
	if p1.OnHand != 8 {
		t.Fatalf("p1 on hand = %d, want 8", p1.OnHand)
	}
	active, err := f.ledger.ActiveReservations(order.ID)
	if err != nil {
		t.Fatalf("active reservations: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active reservations = %d, want 2", len(active))
	}

	// Корзина очищена.
	if _, err := f.carts.Get("cart-1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("cart must be deleted after conversion, got %v", err)
	}

	// Событие OrderCreated ушло в outbox.
	if len(f.outbox.messages) != 1 || f.outbox.messages[0].EventType != "OrderCreated" {
		t.Fatalf("unexpected outbox messages: %+v", f.outbox.messages)
	}

	// Заказ сохранён и читается обратно.
	saved, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get saved order: %v", err)
	}
	if saved.CustomerID != "customer-1" {
		t.Fatalf("customer = %q, want customer-1", saved.CustomerID)
	}
}

func TestPipeline_ConvertGuestCheckout(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedProduct(t, "p1", 10_000, 3, false)
	f.seedCart(t, "cart-1", domain.CartLine{ProductID: "p1", Qty: 1})

	order, err := f.pipeline.Convert("cart-1", "")
	if err != nil {
		t.Fatalf("guest convert: %v", err)
	}
	if order.CustomerID != "" {
		t.Fatalf("guest order must keep empty customer id, got %q", order.CustomerID)
	}
}

func TestPipeline_ConvertEmptyCart(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedCart(t, "cart-1")

	_, err := f.pipeline.Convert("cart-1", "customer-1")
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestPipeline_ConvertMissingCart(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Convert("ghost", "customer-1")
	if !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestPipeline_ConvertCoalescesDuplicates(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedProduct(t, "p1", 10_000, 10, false)
	f.seedCart(t, "cart-1",
		domain.CartLine{ProductID: "p1", Qty: 1},
		domain.CartLine{ProductID: "p1", Qty: 2},
	)

	order, err := f.pipeline.Convert("cart-1", "customer-1")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("duplicates must merge into one item, got %d", len(order.Items))
	}
	if order.Items[0].Qty != 3 {
		t.Fatalf("merged qty = %d, want 3", order.Items[0].Qty)
	}
}

func TestPipeline_ConvertNamesAllUnavailableProducts(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedProduct(t, "p1", 10_000, 1, false)
	f.seedProduct(t, "p2", 10_000, 10, false)
	f.seedCart(t, "cart-1",
		domain.CartLine{ProductID: "p1", Qty: 5},
		domain.CartLine{ProductID: "p2", Qty: 1},
		domain.CartLine{ProductID: "deleted", Qty: 1},
	)

	_, err := f.pipeline.Convert("cart-1", "customer-1")

	var insufficientErr *domain.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(insufficientErr.ProductIDs) != 2 {
		t.Fatalf("refusal must name every unavailable product: %v", insufficientErr.ProductIDs)
	}

	// Отказ ничего не резервирует и не трогает корзину.
	p2, _ := f.products.Get("p2")
	if p2.OnHand != 10 {
		t.Fatalf("p2 stock must be untouched, on hand = %d", p2.OnHand)
	}
	if _, err := f.carts.Get("cart-1"); err != nil {
		t.Fatalf("cart must survive failed conversion: %v", err)
	}
}

func TestPipeline_ConvertRollsBackOnMidLoopFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedProduct(t, "p1", 10_000, 10, false)
	f.seedProduct(t, "p2", 10_000, 10, false)

	// Гонка: между pre-check и резервом второй позиции сток p2 уходит.
	// Репозиторий возвращает для p2 устаревшую версию, резерв падает
	// конфликтом, а уже взятый резерв p1 должен откатиться.
	conflicting := &racingProductRepo{
		ProductRepository: f.products,
		raceProductID:     "p2",
	}
	pipeline := NewPipeline(
		f.carts,
		conflicting,
		f.orders,
		f.ledger,
		pricing.NewEngine(pricing.DefaultConfig()),
		WithLogger(log.New().WithField("c", "checkout")),
	)

	f.seedCart(t, "cart-1",
		domain.CartLine{ProductID: "p1", Qty: 2},
		domain.CartLine{ProductID: "p2", Qty: 1},
	)

	_, err := pipeline.Convert("cart-1", "customer-1")
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock after race, got %v", err)
	}

	// Резерв первой позиции снят, сток восстановлен.
	p1, _ := f.products.Get("p1")
	if p1.OnHand != 10 {
		t.Fatalf("p1 stock must be rolled back, on hand = %d", p1.OnHand)
	}
}

// racingProductRepo отдаёт для одного товара устаревшую версию, имитируя
// конкурентное изменение стока между чтением и резервом.
type racingProductRepo struct {
	domain.ProductRepository
	raceProductID string
}

func (r *racingProductRepo) Get(id string) (domain.Product, error) {
	product, err := r.ProductRepository.Get(id)
	if err != nil {
		return domain.Product{}, err
	}
	if id == r.raceProductID {
		product.Version--
	}
	return product, nil
}
