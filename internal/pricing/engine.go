// Package pricing реализует чистый расчёт стоимости заказа: подытог,
// доставка, срочная наценка и НДС. Движок не имеет состояния и побочных
// эффектов; право заказа на срочную доставку проверяет Lifecycle Manager,
// здесь только арифметика.
package pricing

import "github.com/vladislavdragonenkov/mediashop/internal/domain"

// Config задаёт коммерческие константы расчёта. Все суммы — в минимальных
// денежных единицах, НДС — в целых процентах.
type Config struct {
	// FreeShippingThreshold — подытог без НДС, начиная с которого базовая
	// доставка бесплатна. Срочная наценка порогом не отменяется.
	FreeShippingThreshold int64
	// RushPerItemFee — наценка за каждую единицу rush-eligible товара.
	RushPerItemFee int64
	// VATPercent — ставка НДС; НДС начисляется и на стоимость доставки.
	VATPercent int64
	// DeliveryFeeByProvince — тариф стандартной доставки по провинции назначения.
	DeliveryFeeByProvince map[string]int64
	// DefaultDeliveryFee — тариф для провинций, отсутствующих в таблице.
	DefaultDeliveryFee int64
	// RushProvinces — зоны, в которые доступна срочная доставка.
	RushProvinces map[string]struct{}
}

// DefaultConfig возвращает действующие тарифы магазина.
func DefaultConfig() Config {
	return Config{
		FreeShippingThreshold: 100_000,
		RushPerItemFee:        10_000,
		VATPercent:            10,
		DeliveryFeeByProvince: map[string]int64{
			"Hanoi":            22_000,
			"Ho Chi Minh City": 22_000,
		},
		DefaultDeliveryFee: 30_000,
		RushProvinces: map[string]struct{}{
			"Hanoi": {},
		},
	}
}

// Line — входная позиция расчёта: замороженная цена, количество и rush-флаг.
type Line struct {
	PriceMinor   int64
	Qty          int32
	RushEligible bool
}

// Engine выполняет расчёт по заданной конфигурации тарифов.
type Engine struct {
	cfg Config
}

// NewEngine создаёт движок с переданными тарифами.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// RushAvailable сообщает, доступна ли срочная доставка в указанную провинцию.
func (e *Engine) RushAvailable(province string) bool {
	_, ok := e.cfg.RushProvinces[province]
	return ok
}

// Subtotal считает подытог без НДС по замороженным ценам позиций.
func (e *Engine) Subtotal(lines []Line) int64 {
	var sum int64
	for _, line := range lines {
		sum += int64(line.Qty) * line.PriceMinor
	}
	return sum
}

// Quote считает полную стоимость заказа для известного адреса доставки.
//
// rushRequested означает, что срочная доставка уже одобрена для rush-eligible
// части позиций: движок не решает, допустима ли она, а только начисляет
// наценку. Смешанные корзины поддерживаются — не-eligible позиции едут
// стандартной доставкой без наценки.
func (e *Engine) Quote(lines []Line, province string, rushRequested bool) domain.Totals {
	subtotal := e.Subtotal(lines)
	freeShipping := subtotal >= e.cfg.FreeShippingThreshold

	var baseFee int64
	if !freeShipping {
		baseFee = e.standardFee(province)
	}

	var rushSurcharge int64
	if rushRequested {
		for _, line := range lines {
			if line.RushEligible {
				rushSurcharge += int64(line.Qty) * e.cfg.RushPerItemFee
			}
		}
	}

	deliveryFee := baseFee + rushSurcharge
	// НДС начисляется на товары и доставку вместе.
	vat := (subtotal + deliveryFee) * e.cfg.VATPercent / 100

	return domain.Totals{
		SubtotalExclVAT: subtotal,
		BaseDeliveryFee: baseFee,
		RushSurcharge:   rushSurcharge,
		DeliveryFee:     deliveryFee,
		VATAmount:       vat,
		GrandTotal:      subtotal + deliveryFee + vat,
		FreeShipping:    freeShipping,
	}
}

// QuoteSubtotalOnly считает суммы на этапе, когда адрес ещё неизвестен:
// доставка нулевая, НДС начисляется только на товары.
func (e *Engine) QuoteSubtotalOnly(lines []Line) domain.Totals {
	subtotal := e.Subtotal(lines)
	vat := subtotal * e.cfg.VATPercent / 100

	return domain.Totals{
		SubtotalExclVAT: subtotal,
		VATAmount:       vat,
		GrandTotal:      subtotal + vat,
		FreeShipping:    subtotal >= e.cfg.FreeShippingThreshold,
	}
}

func (e *Engine) standardFee(province string) int64 {
	if fee, ok := e.cfg.DeliveryFeeByProvince[province]; ok {
		return fee
	}
	return e.cfg.DefaultDeliveryFee
}

// LinesFromItems преобразует позиции заказа во вход движка.
func LinesFromItems(items []domain.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			PriceMinor:   item.PriceMinor,
			Qty:          item.Qty,
			RushEligible: item.RushEligible,
		})
	}
	return lines
}
