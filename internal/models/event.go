package models

import "time"

// Типы событий в outbox-таблице order_events.
const (
	EventOrderCreated  = "order.created"
	EventOrderUpdated  = "order.updated"
	EventOrderExported = "order.exported"
)

// OrderEvent: строка outbox, которую relay публикует в Kafka.
type OrderEvent struct {
	ID          uint64
	OrderID     string
	Kind        string
	Status      string
	Attempts    int32
	NextAttempt time.Time
	CreatedAt   time.Time
}
