package domain

import "time"

// ChargeResult — результат обращения к платёжному шлюзу.
type ChargeResult struct {
	Success         bool
	TransactionID   string
	GatewayResponse string
}

// PaymentGateway описывает взаимодействие с внешним платёжным провайдером.
// Вызов может быть медленным и падать; ошибки транслируются как ErrPaymentFailed
// без изменения статуса заказа.
type PaymentGateway interface {
	Charge(orderID, paymentMethodID string, amountMinor int64) (ChargeResult, error)
}

// OutboxMessage — событие, записанное в transactional outbox вместе с
// породившим его изменением данных.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — срез backlog неопубликованных сообщений для метрик.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher доставляет сообщение из outbox во внешний sink.
// Реализация обязана быть идемпотентной: воркер может повторить
// доставку уже опубликованного сообщения.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// OutboxRepository хранит сообщения outbox и их статусы доставки.
type OutboxRepository interface {
	// Enqueue сохраняет сообщение со статусом pending; пустой ID
	// заменяется сгенерированным.
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	// PullPending отдаёт неопубликованные сообщения в порядке постановки.
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит append-only хронику событий заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
