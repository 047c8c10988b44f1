package domain

import "time"

// MediaType — тип носителя в каталоге магазина.
type MediaType string

const (
	MediaTypeBook MediaType = "book"
	MediaTypeCD   MediaType = "cd"
	MediaTypeDVD  MediaType = "dvd"
	MediaTypeLP   MediaType = "lp"
)

// Valid проверяет, что тип носителя относится к поддерживаемым значениям.
func (m MediaType) Valid() bool {
	switch m {
	case MediaTypeBook, MediaTypeCD, MediaTypeDVD, MediaTypeLP:
		return true
	default:
		return false
	}
}

// Product — товарная позиция каталога с учётом стока.
//
// OnHand и Version изменяются только через Stock Ledger: каждая успешная
// мутация стока инкрементирует Version, что и служит токеном optimistic
// locking при условной записи.
type Product struct {
	ID       string
	Title    string
	Media    MediaType
	Category string
	// PriceMinor — цена за единицу без НДС в минимальных денежных единицах.
	PriceMinor int64
	OnHand     int32
	Version    int64
	// RushEligible — допускает ли тип носителя срочную доставку.
	RushEligible bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate проверяет корректность ключевых полей товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrPriceInvalid)
	}

	return errs
}
