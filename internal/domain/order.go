package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPendingDeliveryInfo — заказ создан из корзины, адрес доставки ещё не указан.
	OrderStatusPendingDeliveryInfo OrderStatus = "pending_delivery_info"
	// OrderStatusPendingPayment — адрес указан, итоговая сумма рассчитана, ожидаем оплату.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPendingProcessing — оплата прошла, заказ ожидает решения менеджера.
	OrderStatusPendingProcessing OrderStatus = "pending_processing"
	// OrderStatusApproved — менеджер подтвердил заказ, резервы закоммичены.
	OrderStatusApproved OrderStatus = "approved"
	// OrderStatusRejected — менеджер отклонил заказ, резервы освобождены. Терминальный.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusShipping — заказ передан в доставку.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered — заказ доставлен покупателю. Терминальный.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён до отгрузки. Терминальный.
	OrderStatusCanceled OrderStatus = "canceled"
)

// AllowedTransitions — единственное место, где закреплены легальные переходы
// статусов. Добавление нового состояния затрагивает только эту таблицу.
//
// Переход pending_payment → pending_delivery_info — компенсационное ребро:
// финальная проверка резервов перед оплатой откатывает заказ на этап адреса.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingDeliveryInfo: {OrderStatusPendingPayment, OrderStatusCanceled},
	OrderStatusPendingPayment:      {OrderStatusPendingProcessing, OrderStatusPendingDeliveryInfo, OrderStatusCanceled},
	OrderStatusPendingProcessing:   {OrderStatusApproved, OrderStatusRejected, OrderStatusCanceled},
	OrderStatusApproved:            {OrderStatusShipping, OrderStatusCanceled},
	OrderStatusShipping:            {OrderStatusDelivered},
	OrderStatusDelivered:           {},
	OrderStatusRejected:            {},
	OrderStatusCanceled:            {},
}

// CanTransition проверяет допустимость перехода from → to по таблице.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return len(AllowedTransitions[s]) == 0
}

// OrderItem — позиция заказа с замороженными на момент создания полями.
//
// PriceMinor и RushEligible копируются из каталога при конвертации корзины
// и больше никогда не перечитываются: покупатель платит ровно то, что ему
// показали, даже если цена в каталоге изменилась.
type OrderItem struct {
	ID           string
	ProductID    string
	Title        string
	Media        MediaType
	Qty          int32
	PriceMinor   int64
	RushEligible bool
	CreatedAt    time.Time
}

// DeliveryInfo — данные доставки, указываемые после создания заказа.
type DeliveryInfo struct {
	RecipientName string
	Phone         string
	Email         string
	Province      string
	City          string
	Address       string
	Rush          bool
	Instructions  string
}

// Totals — рассчитанные Pricing Engine суммы заказа в минимальных единицах.
type Totals struct {
	SubtotalExclVAT int64
	BaseDeliveryFee int64
	RushSurcharge   int64
	DeliveryFee     int64
	VATAmount       int64
	GrandTotal      int64
	FreeShipping    bool
}

// Invoice — неизменяемый снимок итоговой суммы, создаваемый при успешной оплате.
type Invoice struct {
	ID            string
	OrderID       string
	Totals        Totals
	TransactionID string
	IssuedAt      time.Time
}

// Order агрегирует состояние заказа, его позиции и расчёты.
type Order struct {
	ID         string
	CustomerID string // Пустой для гостевого заказа.
	Status     OrderStatus
	Items      []OrderItem
	Delivery   *DeliveryInfo
	Totals     Totals
	Invoice    *Invoice
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubtotalExclVAT пересчитывает сумму позиций из замороженных цен.
func (o *Order) SubtotalExclVAT() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += int64(item.Qty) * item.PriceMinor
	}
	return sum
}

// RushEligibleQty возвращает суммарное количество единиц, допускающих срочную доставку.
func (o *Order) RushEligibleQty() int32 {
	var qty int32
	for _, item := range o.Items {
		if item.RushEligible {
			qty += item.Qty
		}
	}
	return qty
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrPriceInvalid)
		}
	}

	// Сверяем итог с замороженными ценами позиций: grand total всегда
	// выводится из снапшота, а не из живого каталога.
	if o.Totals.SubtotalExclVAT != o.SubtotalExclVAT() {
		errs = append(errs, ErrTotalsMismatch)
	}
	if o.Totals.GrandTotal != o.Totals.SubtotalExclVAT+o.Totals.DeliveryFee+o.Totals.VATAmount {
		errs = append(errs, ErrTotalsMismatch)
	}
	if o.Totals.DeliveryFee != o.Totals.BaseDeliveryFee+o.Totals.RushSurcharge {
		errs = append(errs, ErrTotalsMismatch)
	}

	return errs
}
