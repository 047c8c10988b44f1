package domain

import "time"

// ReservationStatus отражает состояние складского резерва.
type ReservationStatus string

const (
	// ReservationStatusActive — сток списан и удерживается под заказ.
	ReservationStatusActive ReservationStatus = "active"
	// ReservationStatusReleased — резерв снят, количество возвращено на склад.
	ReservationStatusReleased ReservationStatus = "released"
	// ReservationStatusCommitted — резерв окончательно потреблён (заказ подтверждён).
	ReservationStatusCommitted ReservationStatus = "committed"
)

// StockReservation — обратимое списание стока, привязанное к заказу.
//
// Записывается атомарно вместе с условным декрементом on-hand, поэтому
// компенсация (release) не требует повторного вычисления затронутых
// товаров и количеств.
type StockReservation struct {
	ID        string
	OrderID   string
	ProductID string
	Qty       int32
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active сообщает, удерживает ли резерв сток прямо сейчас.
func (r *StockReservation) Active() bool {
	return r.Status == ReservationStatusActive
}

// Validate проверяет, корректно ли заполнены ключевые поля резерва.
func (r *StockReservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}

	return errs
}
