package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка пустой корзины при конвертации в заказ.
	ErrEmptyCart = errors.New("cart is empty")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQtyInvalid = errors.New("qty must be greater than zero")
	// Ошибка, если цена товара отрицательная.
	ErrPriceInvalid = errors.New("price must be non-negative")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка несоответствия итоговой суммы заказа и суммы позиций.
	ErrTotalsMismatch = errors.New("order totals do not match frozen item prices")
	// Ошибка отсутствующего идентификатора заказа в резервах/платежах.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCartNotFound возвращается, если корзина не найдена в хранилище.
	ErrCartNotFound = errors.New("cart not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrReservationNotFound возвращается, если резерв по ключу отсутствует.
	ErrReservationNotFound = errors.New("stock reservation not found")

	// ErrVersionConflict сигнализирует о конфликте версий при условной записи.
	// Транзиентная ошибка: вызывающий перечитывает версию и повторяет попытку.
	ErrVersionConflict = errors.New("optimistic lock conflict")
	// ErrInsufficientStock — бизнес-факт нехватки товара; не ретраится.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRushNotEligible — заказ/адрес не проходит проверку срочной доставки.
	ErrRushNotEligible = errors.New("rush delivery is not eligible for this order")
	// ErrStockValidationFailed — финальная проверка резервов перед оплатой не прошла.
	ErrStockValidationFailed = errors.New("stock validation failed at payment time")
	// ErrInvalidStateTransition — недопустимый переход статуса заказа.
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	// ErrPaymentFailed — внешний платёжный шлюз отклонил списание или недоступен.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError перечисляет товары, по которым не хватило стока.
// Оборачивает ErrInsufficientStock, чтобы работали стандартные errors.Is проверки.
type InsufficientStockError struct {
	ProductIDs []string
}

// Error формирует сообщение со списком проблемных товаров.
func (e *InsufficientStockError) Error() string {
	if len(e.ProductIDs) == 0 {
		return ErrInsufficientStock.Error()
	}
	return fmt.Sprintf("insufficient stock for products: %s", strings.Join(e.ProductIDs, ", "))
}

// Unwrap позволяет распознавать ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой стока.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
