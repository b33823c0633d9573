package fake

import (
	"context"
	"sync"

	"github.com/BearBump/BundleBox/internal/integrations/push"
)

// Client складывает уведомления в память. Используется, когда webhook не настроен.
type Client struct {
	mu   sync.Mutex
	sent []push.Notification
	err  error
}

func New() *Client { return &Client{} }

// FailWith заставляет следующие Send возвращать err.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Client) Send(ctx context.Context, n push.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *Client) Sent() []push.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]push.Notification(nil), c.sent...)
}
