// Package realtime рассылает подписчикам (админ-дашбордам) полный список заказов
// при подписке и после каждого изменения.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
)

type Lister interface {
	List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
}

// Hub хранит подписчиков. У каждого своя горутина доставки и почтовый ящик на один снимок:
// медленный подписчик пропускает промежуточные снимки, но всегда получает последний.
// Снимок общий для всех подписчиков и только для чтения.
type Hub struct {
	src Lister

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	mailbox chan []*models.Order
	done    chan struct{}
	once    sync.Once
}

func New(src Lister) *Hub {
	return &Hub{src: src, subs: map[uint64]*subscriber{}}
}

// Subscribe сразу кладёт в ящик текущий список и возвращает идемпотентную отписку.
// Отмена ctx тоже отписывает.
func (h *Hub) Subscribe(ctx context.Context, onChange func(orders []*models.Order)) (func(), error) {
	h.mu.Lock()
	list, err := h.src.List(ctx, models.OrderFilter{})
	if err != nil {
		h.mu.Unlock()
		return nil, errors.Wrap(err, "load orders for subscriber")
	}
	id := h.nextID
	h.nextID++
	sub := &subscriber{
		mailbox: make(chan []*models.Order, 1),
		done:    make(chan struct{}),
	}
	h.subs[id] = sub
	sub.offer(list)
	h.mu.Unlock()

	go sub.run(onChange)

	unsubscribe := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return unsubscribe, nil
}

// Notify перечитывает список и рассылает его всем подписчикам.
func (h *Hub) Notify(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return nil
	}
	list, err := h.src.List(ctx, models.OrderFilter{})
	if err != nil {
		slog.Error("realtime reload", "error", err.Error())
		return errors.Wrap(err, "reload orders")
	}
	for _, sub := range h.subs {
		sub.offer(list)
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// offer вызывается под h.mu, поэтому писатель в ящик всегда один.
func (s *subscriber) offer(list []*models.Order) {
	select {
	case s.mailbox <- list:
		return
	default:
	}
	// ящик занят старым снимком — заменяем
	select {
	case <-s.mailbox:
	default:
	}
	select {
	case s.mailbox <- list:
	default:
	}
}

func (s *subscriber) run(onChange func(orders []*models.Order)) {
	for {
		select {
		case <-s.done:
			return
		case list := <-s.mailbox:
			select {
			case <-s.done:
				return
			default:
			}
			onChange(list)
		}
	}
}

// ReviewOrders отбирает заказы, ждущие проверки админом (для алерта "новые заказы").
func ReviewOrders(orders []*models.Order) []*models.Order {
	out := make([]*models.Order, 0)
	for _, o := range orders {
		if o.Status == models.StatusReview {
			out = append(out, o)
		}
	}
	return out
}
