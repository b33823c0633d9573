package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/jackc/pgx/v5"
)

func insertEvent(ctx context.Context, tx pgx.Tx, orderID, kind, status string, at time.Time) error {
	_, err := tx.Exec(ctx, `
INSERT INTO order_events (order_id, kind, status, next_attempt_at, created_at)
VALUES ($1,$2,$3,$4,$4)
`, orderID, kind, status, at.UTC())
	if err != nil {
		return apperr.FromStorage(err, "insert order event")
	}
	return nil
}

// ClaimPendingEvents выбирает пачку неопубликованных событий и "бронирует" их на lease,
// чтобы параллельный relay не взял их повторно. Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimPendingEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OrderEvent, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.FromStorage(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, order_id, kind, status, attempts, next_attempt_at, created_at
FROM order_events
WHERE published_at IS NULL
  AND next_attempt_at <= $1
ORDER BY id ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, apperr.FromStorage(err, "select pending events")
	}

	var picked []*models.OrderEvent
	ids := []int64{}
	for rows.Next() {
		var e models.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.Status, &e.Attempts, &e.NextAttempt, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, apperr.FromStorage(err, "scan pending event")
		}
		picked = append(picked, &e)
		ids = append(ids, int64(e.ID))
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, apperr.FromStorage(rows.Err(), "rows")
	}

	if len(picked) > 0 {
		leaseUntil := now.UTC().Add(lease)
		_, err := tx.Exec(ctx, `
UPDATE order_events
SET next_attempt_at = $2, attempts = attempts + 1
WHERE id = ANY($1)
`, ids, leaseUntil)
		if err != nil {
			return nil, apperr.FromStorage(err, "lease events")
		}
		for _, e := range picked {
			e.NextAttempt = leaseUntil
			e.Attempts++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.FromStorage(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) MarkEventPublished(ctx context.Context, id uint64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE order_events SET published_at = $2, last_error = NULL WHERE id = $1`, int64(id), at.UTC())
	return apperr.FromStorage(err, "mark event published")
}

// RescheduleEvent откладывает повторную публикацию после ошибки.
func (s *Storage) RescheduleEvent(ctx context.Context, id uint64, next time.Time, lastErr string) error {
	_, err := s.db.Exec(ctx, `UPDATE order_events SET next_attempt_at = $2, last_error = $3 WHERE id = $1`, int64(id), next.UTC(), lastErr)
	return apperr.FromStorage(err, "reschedule event")
}
