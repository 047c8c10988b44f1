package pricing

import (
	"testing"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

func TestEngine_Quote(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	cases := []struct {
		name     string
		lines    []Line
		province string
		rush     bool
		want     domain.Totals
	}{
		{
			// Два тома по 50k плюс rush CD за 40k в Hanoi: порог бесплатной
			// доставки взят, но срочная наценка порогом не отменяется.
			name: "free shipping with rush surcharge",
			lines: []Line{
				{PriceMinor: 50_000, Qty: 2, RushEligible: false},
				{PriceMinor: 40_000, Qty: 1, RushEligible: true},
			},
			province: "Hanoi",
			rush:     true,
			want: domain.Totals{
				SubtotalExclVAT: 140_000,
				BaseDeliveryFee: 0,
				RushSurcharge:   10_000,
				DeliveryFee:     10_000,
				VATAmount:       15_000,
				GrandTotal:      165_000,
				FreeShipping:    true,
			},
		},
		{
			name: "below threshold hanoi standard",
			lines: []Line{
				{PriceMinor: 30_000, Qty: 1, RushEligible: true},
			},
			province: "Hanoi",
			rush:     false,
			want: domain.Totals{
				SubtotalExclVAT: 30_000,
				BaseDeliveryFee: 22_000,
				RushSurcharge:   0,
				DeliveryFee:     22_000,
				VATAmount:       5_200,
				GrandTotal:      57_200,
				FreeShipping:    false,
			},
		},
		{
			name: "default province fee",
			lines: []Line{
				{PriceMinor: 40_000, Qty: 1, RushEligible: false},
			},
			province: "Da Nang",
			rush:     false,
			want: domain.Totals{
				SubtotalExclVAT: 40_000,
				BaseDeliveryFee: 30_000,
				RushSurcharge:   0,
				DeliveryFee:     30_000,
				VATAmount:       7_000,
				GrandTotal:      77_000,
				FreeShipping:    false,
			},
		},
		{
			// Смешанная корзина: наценка только на rush-eligible единицы.
			name: "mixed cart rush per eligible unit",
			lines: []Line{
				{PriceMinor: 20_000, Qty: 2, RushEligible: true},
				{PriceMinor: 15_000, Qty: 1, RushEligible: false},
			},
			province: "Hanoi",
			rush:     true,
			want: domain.Totals{
				SubtotalExclVAT: 55_000,
				BaseDeliveryFee: 22_000,
				RushSurcharge:   20_000,
				DeliveryFee:     42_000,
				VATAmount:       9_700,
				GrandTotal:      106_700,
				FreeShipping:    false,
			},
		},
		{
			name: "threshold boundary is inclusive",
			lines: []Line{
				{PriceMinor: 100_000, Qty: 1, RushEligible: false},
			},
			province: "Ho Chi Minh City",
			rush:     false,
			want: domain.Totals{
				SubtotalExclVAT: 100_000,
				BaseDeliveryFee: 0,
				RushSurcharge:   0,
				DeliveryFee:     0,
				VATAmount:       10_000,
				GrandTotal:      110_000,
				FreeShipping:    true,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Quote(tc.lines, tc.province, tc.rush)
			if got != tc.want {
				t.Fatalf("Quote() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestEngine_QuoteIsPure(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	lines := []Line{{PriceMinor: 50_000, Qty: 1, RushEligible: true}}

	first := engine.Quote(lines, "Hanoi", true)
	second := engine.Quote(lines, "Hanoi", true)
	if first != second {
		t.Fatalf("identical inputs must produce identical totals: %+v vs %+v", first, second)
	}
}

func TestEngine_QuoteSubtotalOnly(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	got := engine.QuoteSubtotalOnly([]Line{
		{PriceMinor: 50_000, Qty: 2, RushEligible: false},
	})
	want := domain.Totals{
		SubtotalExclVAT: 100_000,
		VATAmount:       10_000,
		GrandTotal:      110_000,
		FreeShipping:    true,
	}
	if got != want {
		t.Fatalf("QuoteSubtotalOnly() = %+v, want %+v", got, want)
	}
}

func TestEngine_RushAvailable(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	if !engine.RushAvailable("Hanoi") {
		t.Fatal("rush must be available in Hanoi")
	}
	if engine.RushAvailable("Ho Chi Minh City") {
		t.Fatal("rush zone does not include Ho Chi Minh City")
	}
	if engine.RushAvailable("") {
		t.Fatal("empty province is never a rush zone")
	}
}

func TestLinesFromItems(t *testing.T) {
	items := []domain.OrderItem{
		{ProductID: "p1", Qty: 2, PriceMinor: 10_000, RushEligible: true},
		{ProductID: "p2", Qty: 1, PriceMinor: 5_000, RushEligible: false},
	}

	lines := LinesFromItems(items)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != (Line{PriceMinor: 10_000, Qty: 2, RushEligible: true}) {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
}
