// Package relay публикует события из outbox-таблицы order_events в Kafka
// и рассылает push-уведомления о новых заказах.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/BundleBox/internal/broker/messages"
	"github.com/BearBump/BundleBox/internal/integrations/push"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimPendingEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OrderEvent, error)
	MarkEventPublished(ctx context.Context, id uint64, at time.Time) error
	RescheduleEvent(ctx context.Context, id uint64, next time.Time, lastErr string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Relay struct {
	repo     Repository
	producer Producer
	pusher   push.Client
	rl       RateLimiter

	topic string

	backoff *Backoff
	now     func() time.Time

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	pushLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	totalPushed         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

// New собирает relay. pusher и rl могут быть nil: тогда push не отправляется или не ограничивается.
func New(repo Repository, producer Producer, pusher push.Client, rl RateLimiter, topic string) *Relay {
	return &Relay{
		repo: repo, producer: producer, pusher: pusher, rl: rl, topic: topic,
		backoff:            NewBackoff(DefaultBackoffConfig()),
		now:                func() time.Time { return time.Now().UTC() },
		pollInterval:       time.Second,
		batchSize:          100,
		concurrency:        8,
		lease:              30 * time.Second,
		pushLimitPerMinute: 60,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Relay) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, pushPerMin int64) *Relay {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	if pushPerMin > 0 {
		r.pushLimitPerMinute = pushPerMin
	}
	return r
}

func (r *Relay) WithBackoff(cfg BackoffConfig) *Relay {
	r.backoff = NewBackoff(cfg)
	return r
}

// Trigger запускает внеочередной цикл. Не блокирует.
func (r *Relay) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	TotalPushed    int64      `json:"totalPushed"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Relay) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalPublished: r.totalPublished.Load(),
		TotalErrors:    r.totalErrors.Load(),
		TotalPushed:    r.totalPushed.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Relay) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

func (r *Relay) runOnce(ctx context.Context) {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())

	events, err := r.repo.ClaimPendingEvents(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim pending events", "error", err.Error())
		r.setLastError(err)
		return
	}
	r.totalClaimed.Add(int64(len(events)))

	// события одного заказа публикуются последовательно, в порядке id
	groups := map[string][]*models.OrderEvent{}
	var order []string
	for _, e := range events {
		if _, ok := groups[e.OrderID]; !ok {
			order = append(order, e.OrderID)
		}
		groups[e.OrderID] = append(groups[e.OrderID], e)
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, orderID := range order {
		batch := groups[orderID]
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(int64(len(batch)))
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			for i, e := range batch {
				err := r.processOne(ctx, e)
				r.inFlight.Add(-1)
				if err == nil {
					continue
				}
				r.totalErrors.Add(1)
				r.setLastError(err)
				slog.Error("relay order event", "event_id", e.ID, "order_id", e.OrderID, "error", err.Error())
				// следующие события заказа ждут, пока не уйдёт это
				for _, rest := range batch[i+1:] {
					r.reschedule(ctx, rest, "previous event of the order is pending")
					r.inFlight.Add(-1)
				}
				return
			}
		}()
	}
	wg.Wait()
}

func (r *Relay) reschedule(ctx context.Context, e *models.OrderEvent, reason string) {
	next := r.now().Add(r.backoff.Delay(e.Attempts))
	if err := r.repo.RescheduleEvent(ctx, e.ID, next, reason); err != nil {
		slog.Error("reschedule order event", "event_id", e.ID, "error", err.Error())
	}
}

func (r *Relay) processOne(ctx context.Context, e *models.OrderEvent) error {
	msg := messages.OrderChanged{
		EventID:   e.ID,
		OrderID:   e.OrderID,
		Kind:      e.Kind,
		Status:    e.Status,
		ChangedAt: e.CreatedAt.UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	if err := r.producer.Publish(ctx, r.topic, []byte(e.OrderID), b); err != nil {
		r.reschedule(ctx, e, err.Error())
		return err
	}
	r.totalPublished.Add(1)

	if e.Kind == models.EventOrderCreated {
		r.notify(ctx, e)
	}

	if err := r.repo.MarkEventPublished(ctx, e.ID, r.now()); err != nil {
		// событие уйдёт повторно после истечения lease; потребители идемпотентны
		return errors.Wrapf(err, "mark event %d", e.ID)
	}
	return nil
}

// notify отправляет push о новом заказе. Ошибки доставки только логируются.
func (r *Relay) notify(ctx context.Context, e *models.OrderEvent) {
	if r.pusher == nil {
		return
	}
	now := r.now()
	if r.rl != nil && r.pushLimitPerMinute > 0 {
		key := fmt.Sprintf("rl:push:%s", now.Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, key, r.pushLimitPerMinute, 70*time.Second)
		if err != nil {
			slog.Warn("push rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			slog.Warn("push rate limit exceeded", "order_id", e.OrderID, "count", n)
			return
		}
	}

	err := r.pusher.Send(ctx, push.Notification{
		OrderID: e.OrderID,
		Title:   "New order awaiting review",
		Body:    fmt.Sprintf("Order %s is waiting for review", e.OrderID),
		Kind:    e.Kind,
		At:      now,
	})
	if err != nil {
		slog.Warn("push notification failed", "order_id", e.OrderID, "error", err.Error())
		return
	}
	r.totalPushed.Add(1)
}
