// Package checkout реализует пайплайн конвертации корзины в заказ.
// Конвертация атомарна с точки зрения вызывающего: либо создаётся заказ
// со взятыми резервами, либо все уже взятые резервы компенсируются и
// возвращается ошибка без частичного состояния.
package checkout

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/metrics"
	"github.com/vladislavdragonenkov/mediashop/internal/pricing"
	"github.com/vladislavdragonenkov/mediashop/internal/stock"
)

// Pipeline превращает валидную корзину в заказ в статусе pending_delivery_info.
type Pipeline struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	orders   domain.OrderRepository
	ledger   *stock.Ledger
	engine   *pricing.Engine
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// Option настраивает Pipeline.
type Option func(*Pipeline)

// WithLogger задаёт logger пайплайна.
func WithLogger(logger *log.Entry) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики конвертации.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithOutbox подключает transactional outbox для события OrderCreated.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(p *Pipeline) {
		p.outbox = outbox
	}
}

// NewPipeline создаёт пайплайн конвертации.
func NewPipeline(
	carts domain.CartRepository,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	ledger *stock.Ledger,
	engine *pricing.Engine,
	options ...Option,
) *Pipeline {
	pipeline := &Pipeline{
		carts:    carts,
		products: products,
		orders:   orders,
		ledger:   ledger,
		engine:   engine,
		logger:   log.New().WithField("component", "checkout"),
	}
	for _, option := range options {
		option(pipeline)
	}
	return pipeline
}

// Convert конвертирует корзину в заказ.
//
// Порядок шагов фиксирован: загрузка и коалесценция корзины, чтение
// товаров, предварительная проверка наличия по всем позициям, цикл
// резервирования с undo-списком, заморозка цен/rush-флагов из значений,
// прочитанных до резервирования, расчёт подытога, сохранение заказа и
// очистка корзины. Цены могут устареть на миллисекунды — это принято;
// сток перепроверяется условной записью самого резерва.
func (p *Pipeline) Convert(cartID, customerID string) (domain.Order, error) {
	start := time.Now()

	order, err := p.convert(cartID, customerID)
	if err != nil {
		p.recordConversion(resultLabel(err), time.Since(start))
		return domain.Order{}, err
	}
	p.recordConversion("ok", time.Since(start))
	return order, nil
}

func (p *Pipeline) convert(cartID, customerID string) (domain.Order, error) {
	cart, err := p.carts.Get(cartID)
	if err != nil {
		return domain.Order{}, err
	}
	if cart.Empty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	lines := cart.CoalescedLines()
	orderID := uuid.NewString()

	// Читаем товары один раз: из этих значений замораживаются цены и
	// rush-флаги, их же версии идут в условные записи резервов.
	productByID := make(map[string]domain.Product, len(lines))
	var missing []string
	for _, line := range lines {
		product, err := p.products.Get(line.ProductID)
		if err != nil {
			if domain.IsInsufficientStock(err) || errors.Is(err, domain.ErrProductNotFound) {
				// Удалённый из каталога товар — нехватка стока (qty 0).
				missing = append(missing, line.ProductID)
				continue
			}
			return domain.Order{}, err
		}
		productByID[line.ProductID] = product
	}

	// Предварительная проверка наличия по всем позициям через ledger,
	// чтобы отказ называл сразу все проблемные товары. Политика «что
	// считать доступным» живёт в одном месте — в ledger.
	unavailable := append([]string(nil), missing...)
	for _, line := range lines {
		if _, ok := productByID[line.ProductID]; !ok {
			continue
		}
		availability, err := p.ledger.CheckAvailability(line.ProductID, line.Qty)
		if err != nil {
			return domain.Order{}, err
		}
		if !availability.Available {
			unavailable = append(unavailable, line.ProductID)
		}
	}
	if len(unavailable) > 0 {
		p.logger.WithFields(log.Fields{
			"cart_id":  cartID,
			"products": unavailable,
		}).Warn("cart conversion rejected: insufficient stock")
		return domain.Order{}, &domain.InsufficientStockError{ProductIDs: unavailable}
	}

	// Цикл резервирования: N независимых атомарных операций с явным
	// undo-списком, разматываемым в обратном порядке при любом сбое.
	reserved := make([]domain.StockReservation, 0, len(lines))
	for _, line := range lines {
		product := productByID[line.ProductID]
		reservation, err := p.ledger.Reserve(line.ProductID, line.Qty, product.Version, orderID)
		if err != nil {
			p.rollback(reserved, cartID)
			if domain.IsVersionConflict(err) || domain.IsInsufficientStock(err) {
				return domain.Order{}, &domain.InsufficientStockError{ProductIDs: []string{line.ProductID}}
			}
			return domain.Order{}, err
		}
		reserved = append(reserved, reservation)
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := productByID[line.ProductID]
		items = append(items, domain.OrderItem{
			ID:           uuid.NewString(),
			ProductID:    product.ID,
			Title:        product.Title,
			Media:        product.Media,
			Qty:          line.Qty,
			PriceMinor:   product.PriceMinor,
			RushEligible: product.RushEligible,
			CreatedAt:    now,
		})
	}

	order := domain.Order{
		ID:         orderID,
		CustomerID: customerID,
		Status:     domain.OrderStatusPendingDeliveryInfo,
		Items:      items,
		// Адрес ещё неизвестен — считаем только подытог.
		Totals:    p.engine.QuoteSubtotalOnly(pricing.LinesFromItems(items)),
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.orders.Create(order); err != nil {
		p.rollback(reserved, cartID)
		return domain.Order{}, err
	}

	if err := p.carts.Delete(cartID); err != nil {
		// Заказ уже создан; зависшая корзина подберётся cleanup-воркером.
		p.logger.WithError(err).WithField("cart_id", cartID).Warn("clear cart after conversion failed")
	}

	p.emitOrderCreated(&order)
	p.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"cart_id":  cartID,
		"items":    len(order.Items),
		"subtotal": order.Totals.SubtotalExclVAT,
	}).Info("cart converted to order")

	return order, nil
}

// rollback снимает уже взятые резервы в обратном порядке.
func (p *Pipeline) rollback(reserved []domain.StockReservation, cartID string) {
	if len(reserved) == 0 {
		return
	}
	if p.metrics != nil {
		p.metrics.RecordRollback()
	}
	for i := len(reserved) - 1; i >= 0; i-- {
		if err := p.ledger.Release(reserved[i].ID); err != nil {
			p.logger.WithError(err).WithFields(log.Fields{
				"cart_id":        cartID,
				"reservation_id": reserved[i].ID,
			}).Error("rollback release failed")
		}
	}
}

func (p *Pipeline) emitOrderCreated(order *domain.Order) {
	if p.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"items_count": len(order.Items),
		"subtotal":    order.Totals.SubtotalExclVAT,
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		p.logger.WithError(err).WithField("order_id", order.ID).Error("marshal OrderCreated failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "OrderCreated",
		Payload:       payload,
	}
	if _, err := p.outbox.Enqueue(msg); err != nil {
		p.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue OrderCreated failed")
	}
}

func (p *Pipeline) recordConversion(result string, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordConversion(result, duration)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case domain.IsInsufficientStock(err):
		return "insufficient_stock"
	case domain.IsVersionConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
