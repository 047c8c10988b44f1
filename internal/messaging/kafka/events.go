package kafka

import (
	"encoding/json"
	"time"
)

// Topics для публикации событий fulfillment-ядра.
const (
	// TopicOrderEvents — события жизненного цикла заказов.
	TopicOrderEvents = "mediashop.order.events"
	// TopicStockEvents — события резервирования/освобождения стока.
	TopicStockEvents = "mediashop.stock.events"
)

// OrderEvent — событие заказа, публикуемое в notification/audit sink.
type OrderEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	OrderID   string          `json:"order_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
