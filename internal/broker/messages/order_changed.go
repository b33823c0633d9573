package messages

import "time"

// OrderChanged: событие из outbox, которое relay публикует в Kafka.
// API по нему рассылает свежий список заказов подписчикам и обновляет кэш.
type OrderChanged struct {
	EventID   uint64    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}
