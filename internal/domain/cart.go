package domain

import (
	"sort"
	"time"
)

// CartLine — одна позиция корзины: товар и запрошенное количество.
type CartLine struct {
	ProductID string
	Qty       int32
}

// Cart — корзина, привязанная к сессии покупателя.
//
// CustomerID может быть пустым: гостевое оформление заказа разрешено.
// Корзина живёт до завершения checkout или явной очистки и никогда не
// разделяется между сессиями.
type Cart struct {
	ID         string
	CustomerID string
	Lines      []CartLine
	UpdatedAt  time.Time
}

// Empty сообщает, что в корзине нет ни одной позиции с количеством > 0.
func (c *Cart) Empty() bool {
	for _, line := range c.Lines {
		if line.Qty > 0 {
			return false
		}
	}
	return true
}

// CoalescedLines суммирует дубликаты одного товара и возвращает позиции
// в детерминированном порядке по product id. Дубликаты в корректно
// собранной корзине не появляются, но пайплайн конвертации обязан
// переживать и такие данные.
func (c *Cart) CoalescedLines() []CartLine {
	merged := make(map[string]int32, len(c.Lines))
	for _, line := range c.Lines {
		if line.ProductID == "" || line.Qty <= 0 {
			continue
		}
		merged[line.ProductID] += line.Qty
	}

	result := make([]CartLine, 0, len(merged))
	for productID, qty := range merged {
		result = append(result, CartLine{ProductID: productID, Qty: qty})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProductID < result[j].ProductID
	})

	return result
}

// Upsert добавляет товар в корзину или увеличивает количество существующей позиции.
func (c *Cart) Upsert(productID string, qty int32) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Qty += qty
			return
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Qty: qty})
}

// Validate проверяет позиции корзины перед конвертацией.
func (c *Cart) Validate() []error {
	var errs []error

	for _, line := range c.Lines {
		if line.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrQtyInvalid)
		}
	}

	return errs
}
