// Package stock реализует Stock Ledger — единственный источник истины по
// доступному количеству товара. Оверселл под конкурентной нагрузкой
// исключается optimistic concurrency: версионная условная запись вместо
// блокировок, чтобы читающие пути (витрина стока) оставались lock-free.
package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/metrics"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 10 * time.Millisecond
)

// Availability — UI-подсказка о наличии товара. Не является гарантией:
// между проверкой и резервом сток может измениться, корректность
// обеспечивает условная запись самого резерва.
type Availability struct {
	Available bool
	OnHand    int32
}

// Ledger управляет on-hand количеством и резервами поверх условного
// write-примитива каталога.
type Ledger struct {
	products     domain.ProductRepository
	reservations domain.ReservationRepository
	logger       *log.Entry
	metrics      *metrics.StockMetrics

	maxRetries int
	baseDelay  time.Duration
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger для ledger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики операций со стоком.
func WithMetrics(m *metrics.StockMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithRetry задаёт границу retry-цикла при конфликтах версий.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(l *Ledger) {
		if maxRetries > 0 {
			l.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			l.baseDelay = baseDelay
		}
	}
}

// NewLedger создаёт ledger поверх репозиториев каталога и резервов.
func NewLedger(products domain.ProductRepository, reservations domain.ReservationRepository, options ...Option) *Ledger {
	ledger := &Ledger{
		products:     products,
		reservations: reservations,
		logger:       log.New().WithField("component", "stock-ledger"),
		maxRetries:   defaultMaxRetries,
		baseDelay:    defaultBaseDelay,
	}
	for _, option := range options {
		option(ledger)
	}
	return ledger
}

// CheckAvailability возвращает наличие товара без побочных эффектов.
// Удалённый из каталога товар считается отсутствующим на складе.
func (l *Ledger) CheckAvailability(productID string, qty int32) (Availability, error) {
	product, err := l.products.Get(productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return Availability{Available: false, OnHand: 0}, nil
		}
		return Availability{}, err
	}
	return Availability{
		Available: product.OnHand >= qty,
		OnHand:    product.OnHand,
	}, nil
}

// Reserve атомарно списывает qty единиц товара под заказ.
//
// Сравнение expectedVersion с текущей версией строки и декремент — одна
// условная запись хранилища: при расхождении версий возвращается
// ErrVersionConflict (вызывающий перечитывает и повторяет), при нехватке
// стока — ErrInsufficientStock (бизнес-факт, не ретраится). Успешный
// резерв фиксируется записью StockReservation с ключом заказа.
func (l *Ledger) Reserve(productID string, qty int32, expectedVersion int64, orderID string) (domain.StockReservation, error) {
	if qty <= 0 {
		return domain.StockReservation{}, domain.ErrQtyInvalid
	}

	product, err := l.products.Get(productID)
	if err != nil {
		return domain.StockReservation{}, err
	}
	if product.Version != expectedVersion {
		l.recordReserve("conflict")
		return domain.StockReservation{}, domain.ErrVersionConflict
	}
	if product.OnHand < qty {
		l.recordReserve("insufficient")
		return domain.StockReservation{}, &domain.InsufficientStockError{ProductIDs: []string{productID}}
	}

	newVersion, err := l.products.ApplyStockChange(productID, product.OnHand-qty, expectedVersion)
	if err != nil {
		if domain.IsVersionConflict(err) {
			l.recordReserve("conflict")
		}
		return domain.StockReservation{}, err
	}

	now := time.Now().UTC()
	reservation := domain.StockReservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		Status:    domain.ReservationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.reservations.Create(reservation); err != nil {
		// Декремент уже применён — возвращаем количество на склад,
		// иначе сток утечёт без привязанного резерва.
		if restoreErr := l.adjustQuantity(productID, qty); restoreErr != nil {
			l.logger.WithError(restoreErr).WithFields(log.Fields{
				"product_id": productID,
				"qty":        qty,
			}).Error("restore after failed reservation create")
		}
		return domain.StockReservation{}, err
	}

	l.recordReserve("ok")
	l.logger.WithFields(log.Fields{
		"product_id":  productID,
		"order_id":    orderID,
		"qty":         qty,
		"new_version": newVersion,
	}).Debug("stock reserved")

	return reservation, nil
}

// ReserveWithRetry повторяет Reserve при конфликтах версий с экспоненциальным
// backoff, перечитывая версию товара перед каждой попыткой. Нехватка стока
// не ретраится. После исчерпания попыток конфликт отдаётся вызывающему как
// checkout-отказ ("товар только что разобрали").
func (l *Ledger) ReserveWithRetry(productID string, qty int32, orderID string) (domain.StockReservation, error) {
	var lastErr error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		product, err := l.products.Get(productID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return domain.StockReservation{}, &domain.InsufficientStockError{ProductIDs: []string{productID}}
			}
			return domain.StockReservation{}, err
		}

		reservation, err := l.Reserve(productID, qty, product.Version, orderID)
		if err == nil {
			return reservation, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.StockReservation{}, err
		}

		lastErr = err
		l.logger.WithFields(log.Fields{
			"product_id": productID,
			"order_id":   orderID,
			"attempt":    attempt + 1,
		}).Warn("version conflict on reserve, retrying")
		time.Sleep(l.baseDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.StockReservation{}, lastErr
}

// Release идемпотентно снимает резерв: возвращает количество на склад и
// инкрементирует версию товара. Повторный вызов по уже снятому или
// закоммиченному резерву ничего не меняет.
//
// Снятый со склада сток не теряется молча: если возврат количества не
// прошёл, резерв остаётся активным и ошибка отдаётся вызывающему, так
// что повторный Release доводит операцию до конца.
func (l *Ledger) Release(reservationID string) error {
	reservation, err := l.reservations.Get(reservationID)
	if err != nil {
		return err
	}
	if !reservation.Active() {
		return nil
	}

	// Условный перевод active -> released: из двух конкурентных Release
	// количество вернёт только тот, чья запись прошла.
	if err := l.reservations.UpdateStatus(reservationID, domain.ReservationStatusActive, domain.ReservationStatusReleased); err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	if err := l.adjustQuantity(reservation.ProductID, reservation.Qty); err != nil {
		// Возврат не прошёл — откатываем статус, чтобы резерв снова
		// удерживал сток и Release можно было повторить.
		if revertErr := l.reservations.UpdateStatus(reservationID, domain.ReservationStatusReleased, domain.ReservationStatusActive); revertErr != nil {
			l.logger.WithError(revertErr).WithField("reservation_id", reservationID).Error("revert release status failed")
		}
		return err
	}
	l.recordRelease()

	l.logger.WithFields(log.Fields{
		"reservation_id": reservationID,
		"product_id":     reservation.ProductID,
		"qty":            reservation.Qty,
	}).Debug("stock reservation released")

	return nil
}

// ReleaseOrder снимает все активные резервы заказа.
func (l *Ledger) ReleaseOrder(orderID string) error {
	reservations, err := l.reservations.ListByOrder(orderID)
	if err != nil {
		return err
	}
	for _, reservation := range reservations {
		if err := l.Release(reservation.ID); err != nil {
			return err
		}
	}
	return nil
}

// Commit помечает резерв как окончательно потреблённый. Количество не
// меняется: декремент произошёл в момент резервирования.
func (l *Ledger) Commit(reservationID string) error {
	reservation, err := l.reservations.Get(reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == domain.ReservationStatusCommitted {
		return nil
	}
	if !reservation.Active() {
		return domain.ErrReservationNotFound
	}
	return l.reservations.UpdateStatus(reservationID, domain.ReservationStatusActive, domain.ReservationStatusCommitted)
}

// CommitOrder коммитит все активные резервы заказа.
func (l *Ledger) CommitOrder(orderID string) error {
	reservations, err := l.reservations.ListByOrder(orderID)
	if err != nil {
		return err
	}
	for _, reservation := range reservations {
		if !reservation.Active() {
			continue
		}
		if err := l.Commit(reservation.ID); err != nil {
			return err
		}
	}
	return nil
}

// ActiveReservations возвращает активные резервы заказа. Используется
// финальной проверкой перед оплатой: она подтверждает, что собственные
// резервы заказа всё ещё удерживают сток, и не трогает on-hand повторно.
func (l *Ledger) ActiveReservations(orderID string) ([]domain.StockReservation, error) {
	reservations, err := l.reservations.ListByOrder(orderID)
	if err != nil {
		return nil, err
	}
	active := make([]domain.StockReservation, 0, len(reservations))
	for _, reservation := range reservations {
		if reservation.Active() {
			active = append(active, reservation)
		}
	}
	return active, nil
}

// adjustQuantity меняет on-hand товара на delta через retry-цикл условной
// записи. Ошибка записи или исчерпанный retry-бюджет отдаются вызывающему:
// решение о компенсации принимает он, количество не теряется молча.
func (l *Ledger) adjustQuantity(productID string, delta int32) error {
	var lastErr error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		product, err := l.products.Get(productID)
		if err != nil {
			return err
		}
		_, err = l.products.ApplyStockChange(productID, product.OnHand+delta, product.Version)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}
		lastErr = err
		time.Sleep(l.baseDelay * time.Duration(1<<uint(attempt)))
	}
	return lastErr
}

func (l *Ledger) recordReserve(result string) {
	if l.metrics != nil {
		l.metrics.RecordReserve(result)
	}
}

func (l *Ledger) recordRelease() {
	if l.metrics != nil {
		l.metrics.RecordRelease()
	}
}
