package push

import (
	"context"
	"time"
)

// Notification: уведомление администраторам о событии по заказу.
type Notification struct {
	OrderID string    `json:"order_id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
}

type Client interface {
	Send(ctx context.Context, n Notification) error
}
