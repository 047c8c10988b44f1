package payment

import (
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки. Реальный шлюз подключается на этом же интерфейсе.
type MockGateway struct {
	ChargeSuccess  bool
	ChargeErr      error
	Response       string
	ChargeCalls    int
	LastOrderID    string
	LastAmount     int64
	LastMethodID   string
	TransactionIDs []string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ChargeSuccess: true,
		Response:      "approved",
	}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Charge(orderID, paymentMethodID string, amountMinor int64) (domain.ChargeResult, error) {
	m.ChargeCalls++
	m.LastOrderID = orderID
	m.LastMethodID = paymentMethodID
	m.LastAmount = amountMinor

	if m.ChargeErr != nil {
		return domain.ChargeResult{GatewayResponse: m.Response}, m.ChargeErr
	}
	result := domain.ChargeResult{
		Success:         m.ChargeSuccess,
		GatewayResponse: m.Response,
	}
	if m.ChargeSuccess {
		result.TransactionID = uuid.NewString()
		m.TransactionIDs = append(m.TransactionIDs, result.TransactionID)
	}
	return result, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
