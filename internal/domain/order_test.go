package domain

import (
	"testing"
	"time"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderStatusPendingDeliveryInfo,
		OrderStatusPendingPayment,
		OrderStatusPendingProcessing,
		OrderStatusApproved,
		OrderStatusShipping,
		OrderStatusDelivered,
	}

	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected transition %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestCanTransition_Illegal(t *testing.T) {
	cases := []struct {
		name string
		from OrderStatus
		to   OrderStatus
	}{
		{"skip payment", OrderStatusPendingDeliveryInfo, OrderStatusPendingProcessing},
		{"ship unpaid", OrderStatusPendingPayment, OrderStatusShipping},
		{"cancel shipping", OrderStatusShipping, OrderStatusCanceled},
		{"revive delivered", OrderStatusDelivered, OrderStatusShipping},
		{"revive rejected", OrderStatusRejected, OrderStatusPendingProcessing},
		{"revive canceled", OrderStatusCanceled, OrderStatusPendingDeliveryInfo},
		{"approve before payment", OrderStatusPendingPayment, OrderStatusApproved},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if CanTransition(tc.from, tc.to) {
				t.Fatalf("transition %s -> %s must be rejected", tc.from, tc.to)
			}
		})
	}
}

func TestCanTransition_CancelBeforeShipping(t *testing.T) {
	cancellable := []OrderStatus{
		OrderStatusPendingDeliveryInfo,
		OrderStatusPendingPayment,
		OrderStatusPendingProcessing,
		OrderStatusApproved,
	}
	for _, status := range cancellable {
		if !CanTransition(status, OrderStatusCanceled) {
			t.Fatalf("cancel from %s must be allowed", status)
		}
	}
}

func TestCanTransition_CompensationEdge(t *testing.T) {
	if !CanTransition(OrderStatusPendingPayment, OrderStatusPendingDeliveryInfo) {
		t.Fatal("compensation edge pending_payment -> pending_delivery_info must be allowed")
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusDelivered, OrderStatusRejected, OrderStatusCanceled}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("status %s must be terminal", status)
		}
	}
	if OrderStatusApproved.Terminal() {
		t.Fatal("approved is not terminal")
	}
}

func TestOrder_SubtotalAndRushQty(t *testing.T) {
	order := Order{Items: []OrderItem{
		{ProductID: "p1", Qty: 2, PriceMinor: 50_000, RushEligible: false},
		{ProductID: "p2", Qty: 1, PriceMinor: 40_000, RushEligible: true},
		{ProductID: "p3", Qty: 3, PriceMinor: 10_000, RushEligible: true},
	}}

	if got := order.SubtotalExclVAT(); got != 170_000 {
		t.Fatalf("subtotal = %d, want 170000", got)
	}
	if got := order.RushEligibleQty(); got != 4 {
		t.Fatalf("rush eligible qty = %d, want 4", got)
	}
}

func TestOrder_ValidateInvariants(t *testing.T) {
	now := time.Now().UTC()
	valid := Order{
		ID:     "order-1",
		Status: OrderStatusPendingPayment,
		Items: []OrderItem{
			{ID: "i1", ProductID: "p1", Qty: 2, PriceMinor: 50_000, CreatedAt: now},
		},
		Totals: Totals{
			SubtotalExclVAT: 100_000,
			BaseDeliveryFee: 0,
			RushSurcharge:   0,
			DeliveryFee:     0,
			VATAmount:       10_000,
			GrandTotal:      110_000,
			FreeShipping:    true,
		},
	}
	if errs := valid.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("unexpected invariant violations: %v", errs)
	}

	tampered := valid
	tampered.Totals.GrandTotal = 120_000
	if errs := tampered.ValidateInvariants(); len(errs) == 0 {
		t.Fatal("expected totals mismatch to be reported")
	}

	driftedSubtotal := valid
	driftedSubtotal.Totals.SubtotalExclVAT = 90_000
	found := false
	for _, err := range driftedSubtotal.ValidateInvariants() {
		if err == ErrTotalsMismatch {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ErrTotalsMismatch for drifted subtotal")
	}

	empty := Order{Totals: Totals{}}
	foundItems := false
	for _, err := range empty.ValidateInvariants() {
		if err == ErrItemsRequired {
			foundItems = true
		}
	}
	if !foundItems {
		t.Fatal("expected ErrItemsRequired for order without items")
	}
}
