package payment

import (
	"errors"
	"testing"
)

func TestMockGateway_ChargeSuccess(t *testing.T) {
	gateway := NewMockGateway()

	result, err := gateway.Charge("o1", "card-1", 112_200)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !result.Success {
		t.Fatal("default mock must approve charges")
	}
	if result.TransactionID == "" {
		t.Fatal("approved charge must carry transaction id")
	}
	if gateway.ChargeCalls != 1 || gateway.LastOrderID != "o1" || gateway.LastAmount != 112_200 {
		t.Fatalf("call bookkeeping: %+v", gateway)
	}
}

func TestMockGateway_ChargeDeclined(t *testing.T) {
	gateway := NewMockGateway()
	gateway.ChargeSuccess = false
	gateway.Response = "insufficient funds"

	result, err := gateway.Charge("o1", "card-1", 100)
	if err != nil {
		t.Fatalf("declined charge is not a transport error: %v", err)
	}
	if result.Success || result.TransactionID != "" {
		t.Fatalf("declined result = %+v", result)
	}
	if result.GatewayResponse != "insufficient funds" {
		t.Fatalf("response = %q", result.GatewayResponse)
	}
}

func TestMockGateway_ChargeTransportError(t *testing.T) {
	gateway := NewMockGateway()
	gateway.ChargeErr = errors.New("gateway timeout")

	_, err := gateway.Charge("o1", "card-1", 100)
	if !errors.Is(err, gateway.ChargeErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(gateway.TransactionIDs) != 0 {
		t.Fatal("transport error must not record a transaction")
	}
}
