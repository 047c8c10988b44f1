package domain

import "time"

// TimelineEvent — одна запись хроники заказа: что произошло, почему и кто
// это инициировал. Хроника append-only.
type TimelineEvent struct {
	OrderID string
	Type    string
	Reason  string
	// Actor — идентификатор менеджера для approve/reject, пустой для
	// действий покупателя и системных переходов.
	Actor    string
	Occurred time.Time
}
