// Package lifecycle реализует конечный автомат статусов заказа. Таблица
// легальных переходов централизована в domain.AllowedTransitions; менеджер
// никогда молча не приводит состояние к нужному — недопустимый переход
// возвращается как ErrInvalidStateTransition без изменения заказа.
package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/metrics"
	"github.com/vladislavdragonenkov/mediashop/internal/pricing"
	"github.com/vladislavdragonenkov/mediashop/internal/stock"
)

// Manager ведёт заказ по жизненному циклу и координирует компенсации стока.
type Manager struct {
	orders   domain.OrderRepository
	ledger   *stock.Ledger
	engine   *pricing.Engine
	gateway  domain.PaymentGateway
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger менеджера.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики переходов.
func WithMetrics(lm *metrics.LifecycleMetrics) Option {
	return func(m *Manager) {
		m.metrics = lm
	}
}

// WithOutbox подключает transactional outbox для событий переходов.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(m *Manager) {
		m.outbox = outbox
	}
}

// WithTimeline подключает audit trail переходов заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(m *Manager) {
		m.timeline = timeline
	}
}

// NewManager создаёт менеджер жизненного цикла.
func NewManager(
	orders domain.OrderRepository,
	ledger *stock.Ledger,
	engine *pricing.Engine,
	gateway domain.PaymentGateway,
	options ...Option,
) *Manager {
	manager := &Manager{
		orders:  orders,
		ledger:  ledger,
		engine:  engine,
		gateway: gateway,
		logger:  log.New().WithField("component", "lifecycle"),
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// SetDeliveryInformation принимает адрес доставки и переводит заказ в
// pending_payment, пересчитав итог уже с доставкой и срочной наценкой.
//
// Запрос срочной доставки валидируется до любых мутаций: нужна хотя бы
// одна rush-eligible позиция и rush-зона назначения, иначе заказ остаётся
// как был и возвращается ErrRushNotEligible.
func (m *Manager) SetDeliveryInformation(orderID string, info domain.DeliveryInfo) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPendingDeliveryInfo {
		return domain.Order{}, m.invalidTransition(&order, domain.OrderStatusPendingPayment)
	}

	if info.Rush {
		if order.RushEligibleQty() == 0 || !m.engine.RushAvailable(info.Province) {
			m.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"province": info.Province,
			}).Warn("rush delivery rejected")
			return domain.Order{}, domain.ErrRushNotEligible
		}
	}

	delivery := info
	order.Delivery = &delivery
	order.Totals = m.engine.Quote(pricing.LinesFromItems(order.Items), info.Province, info.Rush)

	if err := m.transition(&order, domain.OrderStatusPendingPayment, "delivery info captured", ""); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ProcessPayment проводит оплату заказа из pending_payment.
//
// Финальная проверка стока доверяет существующим резервам: подтверждается
// лишь то, что собственные резервы заказа всё ещё активны, on-hand повторно
// не списывается. Если резервы были сняты (гонкой отмены/таймаута), заказ
// откатывается в pending_delivery_info с освобождением остатков и
// возвращается ErrStockValidationFailed. Ошибка шлюза не меняет статус —
// заказ остаётся в pending_payment и оплату можно повторить.
func (m *Manager) ProcessPayment(orderID, paymentMethodID string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return domain.Order{}, m.invalidTransition(&order, domain.OrderStatusPendingProcessing)
	}

	active, err := m.ledger.ActiveReservations(order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if !reservationsCover(active, order.Items) {
		m.recordPayment("stock_validation")
		m.logger.WithField("order_id", order.ID).Warn("stock validation failed at payment time")
		// Снимаем уцелевшие резервы (идемпотентно) и возвращаем заказ
		// на этап адреса доставки.
		if err := m.ledger.ReleaseOrder(order.ID); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Error("release after failed validation")
		}
		if err := m.transition(&order, domain.OrderStatusPendingDeliveryInfo, "stock validation failed", ""); err != nil {
			return domain.Order{}, err
		}
		return order, domain.ErrStockValidationFailed
	}

	// Внешний вызов не держит никаких блокировок стока: резервы уже взяты,
	// медленный шлюз рискует только зря удержанным резервом.
	result, err := m.gateway.Charge(order.ID, paymentMethodID, order.Totals.GrandTotal)
	if err != nil || !result.Success {
		m.recordPayment("failed")
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"response": result.GatewayResponse,
		}).Warn("payment charge failed")
		return order, domain.ErrPaymentFailed
	}

	now := time.Now().UTC()
	order.Invoice = &domain.Invoice{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Totals:        order.Totals,
		TransactionID: result.TransactionID,
		IssuedAt:      now,
	}

	if err := m.transition(&order, domain.OrderStatusPendingProcessing, "payment captured", ""); err != nil {
		return domain.Order{}, err
	}
	m.recordPayment("ok")
	return order, nil
}

// Approve подтверждает заказ менеджером: резервы коммитятся окончательно.
func (m *Manager) Approve(orderID, managerID string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPendingProcessing {
		return domain.Order{}, m.invalidTransition(&order, domain.OrderStatusApproved)
	}

	if err := m.ledger.CommitOrder(order.ID); err != nil {
		return domain.Order{}, err
	}
	if err := m.transition(&order, domain.OrderStatusApproved, "approved by manager", managerID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Reject отклоняет заказ менеджером: резервы освобождаются.
func (m *Manager) Reject(orderID, managerID, reason string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPendingProcessing {
		return domain.Order{}, m.invalidTransition(&order, domain.OrderStatusRejected)
	}

	if err := m.ledger.ReleaseOrder(order.ID); err != nil {
		return domain.Order{}, err
	}
	if err := m.transition(&order, domain.OrderStatusRejected, reason, managerID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Cancel отменяет заказ из любого состояния до отгрузки, идемпотентно
// освобождая ещё активные резервы.
func (m *Manager) Cancel(orderID string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusCanceled) {
		return domain.Order{}, m.invalidTransition(&order, domain.OrderStatusCanceled)
	}

	if err := m.ledger.ReleaseOrder(order.ID); err != nil {
		return domain.Order{}, err
	}
	if err := m.transition(&order, domain.OrderStatusCanceled, "canceled", ""); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// StartShipping переводит подтверждённый заказ в доставку.
func (m *Manager) StartShipping(orderID string) (domain.Order, error) {
	return m.simpleTransition(orderID, domain.OrderStatusApproved, domain.OrderStatusShipping, "handed to carrier")
}

// MarkDelivered фиксирует доставку заказа покупателю.
func (m *Manager) MarkDelivered(orderID string) (domain.Order, error) {
	return m.simpleTransition(orderID, domain.OrderStatusShipping, domain.OrderStatusDelivered, "delivered")
}

func (m *Manager) simpleTransition(orderID string, from, to domain.OrderStatus, reason string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != from {
		return domain.Order{}, m.invalidTransition(&order, to)
	}
	if err := m.transition(&order, to, reason, ""); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// transition выполняет переход статуса через версионную условную запись.
// Конфликт версии означает конкурентный переход того же заказа и отдаётся
// вызывающему как есть: повтор с перечитыванием скрыл бы lost update.
func (m *Manager) transition(order *domain.Order, to domain.OrderStatus, reason, actor string) error {
	if !domain.CanTransition(order.Status, to) {
		return m.invalidTransition(order, to)
	}

	previous := order.Status
	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	prevVersion := order.Version

	if err := m.orders.Save(*order); err != nil {
		order.Status = previous
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"from":     previous,
			"to":       to,
		}).Error("failed to persist status transition")
		return err
	}
	order.Version = prevVersion + 1

	if m.metrics != nil {
		m.metrics.RecordTransition(string(to))
	}
	m.emitTransition(order, previous, reason, actor)

	m.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       to,
	}).Info("order status changed")

	return nil
}

// invalidTransition логирует дефектный переход (корректные потоки до него
// не доходят) и возвращает типизированную ошибку, не меняя заказ.
func (m *Manager) invalidTransition(order *domain.Order, to domain.OrderStatus) error {
	if m.metrics != nil {
		m.metrics.RecordInvalidTransition()
	}
	m.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     order.Status,
		"to":       to,
	}).Error("invalid state transition attempted")
	return domain.ErrInvalidStateTransition
}

// emitTransition фиксирует переход в timeline и outbox. Сбой уведомления
// никогда не блокирует и не отменяет сам переход.
func (m *Manager) emitTransition(order *domain.Order, from domain.OrderStatus, reason, actor string) {
	occurred := order.UpdatedAt

	if m.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     "OrderStatusChanged",
			Reason:   reason,
			Actor:    actor,
			Occurred: occurred,
		}
		if err := m.timeline.Append(event); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
		}
	}

	if m.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id": order.ID,
		"from":     string(from),
		"to":       string(order.Status),
		"reason":   reason,
		"actor":    actor,
		"ts":       occurred.Format(time.RFC3339Nano),
	})
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("marshal transition event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "OrderStatusChanged",
		Payload:       payload,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue transition event failed")
	}
}

func (m *Manager) recordPayment(result string) {
	if m.metrics != nil {
		m.metrics.RecordPayment(result)
	}
}

// reservationsCover проверяет, что активные резервы покрывают каждую позицию
// заказа по количеству.
func reservationsCover(reservations []domain.StockReservation, items []domain.OrderItem) bool {
	held := make(map[string]int32, len(reservations))
	for _, reservation := range reservations {
		held[reservation.ProductID] += reservation.Qty
	}
	for _, item := range items {
		if held[item.ProductID] < item.Qty {
			return false
		}
	}
	return true
}

