package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/lifecycle"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/orderfilter"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const orderColumns = `
  id, agent_id, agent_name, customer_phone, product, amount::text,
  payment_method, payment_network, transaction_id, sender_name,
  status, exported, notes, created_at, updated_at`

func scanOrder(row scanner) (*models.Order, error) {
	var o models.Order
	var amount string
	if err := row.Scan(
		&o.ID, &o.AgentID, &o.AgentName, &o.CustomerPhone, &o.Product, &amount,
		&o.PaymentMethod, &o.PaymentNetwork, &o.TransactionID, &o.SenderName,
		&o.Status, &o.Exported, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.Wrap(err, "parse amount")
	}
	o.Amount = d
	return &o, nil
}

// CreateOrder вставляет заказ, его начальный таймлайн и событие outbox одной транзакцией.
func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.FromStorage(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO orders (
  id, agent_id, agent_name, customer_phone, product, amount,
  payment_method, payment_network, transaction_id, sender_name,
  status, exported, notes, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`, o.ID, o.AgentID, o.AgentName, o.CustomerPhone, o.Product, o.Amount.String(),
		o.PaymentMethod, o.PaymentNetwork, o.TransactionID, o.SenderName,
		o.Status, o.Exported, o.Notes, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return apperr.FromStorage(err, "insert order")
	}

	for _, e := range o.Timeline {
		if err := insertTimeline(ctx, tx, o.ID, e); err != nil {
			return err
		}
	}
	if err := insertEvent(ctx, tx, o.ID, models.EventOrderCreated, o.Status, o.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.FromStorage(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromStorage(err, "select order")
	}
	if err := s.attachTimelines(ctx, s.db, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders выбирает заказы по фильтрам, новые заказы первыми.
func (s *Storage) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	where, args := buildOrderWhere(f)
	q := `SELECT` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC`
	return s.queryOrders(ctx, q, args...)
}

func (s *Storage) ListOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error) {
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}
	return s.queryOrders(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = ANY($1) ORDER BY created_at DESC, id DESC`, ids)
}

func (s *Storage) queryOrders(ctx context.Context, q string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.FromStorage(err, "select orders")
	}
	defer rows.Close()

	out := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.FromStorage(err, "scan order")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, apperr.FromStorage(rows.Err(), "rows")
	}

	if err := s.attachTimelines(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func buildOrderWhere(f models.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if orderfilter.StatusActive(f.Status) {
		add("status = $%d", f.Status)
	}
	if orderfilter.DateActive(f) {
		add("created_at >= $%d", f.From.UTC())
		add("created_at <= $%d", f.To.UTC())
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(id ILIKE $%[1]d OR customer_phone ILIKE $%[1]d OR agent_name ILIKE $%[1]d OR product ILIKE $%[1]d)", n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// attachTimelines подгружает таймлайны одним запросом, сохраняя порядок дописывания.
func (s *Storage) attachTimelines(ctx context.Context, q querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Timeline = []models.TimelineEntry{}
	}

	rows, err := q.Query(ctx, `
SELECT order_id, status, description, created_at
FROM order_timeline
WHERE order_id = ANY($1)
ORDER BY id ASC
`, ids)
	if err != nil {
		return apperr.FromStorage(err, "select timeline")
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var e models.TimelineEntry
		if err := rows.Scan(&orderID, &e.Status, &e.Description, &e.At); err != nil {
			return apperr.FromStorage(err, "scan timeline")
		}
		if o, ok := byID[orderID]; ok {
			o.Timeline = append(o.Timeline, e)
		}
	}
	if rows.Err() != nil {
		return apperr.FromStorage(rows.Err(), "rows")
	}
	return nil
}

// UpdateOrder — read-modify-write под блокировкой строки.
// Изменение полей, новые записи таймлайна и событие outbox коммитятся вместе.
func (s *Storage) UpdateOrder(ctx context.Context, id string, mutate models.OrderMutation) (*models.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.FromStorage(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromStorage(err, "select order for update")
	}
	if err := s.attachTimelines(ctx, tx, []*models.Order{o}); err != nil {
		return nil, err
	}

	entries, err := mutate(o)
	if err != nil {
		return nil, err
	}
	o.ID = id
	o.UpdatedAt = s.now()

	_, err = tx.Exec(ctx, `
UPDATE orders
SET
  agent_id = $2,
  agent_name = $3,
  customer_phone = $4,
  product = $5,
  amount = $6::numeric,
  payment_method = $7,
  payment_network = $8,
  transaction_id = $9,
  sender_name = $10,
  status = $11,
  exported = $12,
  notes = $13,
  updated_at = $14
WHERE id = $1
`, o.ID, o.AgentID, o.AgentName, o.CustomerPhone, o.Product, o.Amount.String(),
		o.PaymentMethod, o.PaymentNetwork, o.TransactionID, o.SenderName,
		o.Status, o.Exported, o.Notes, o.UpdatedAt)
	if err != nil {
		return nil, apperr.FromStorage(err, "update order")
	}

	for _, e := range entries {
		if err := insertTimeline(ctx, tx, o.ID, e); err != nil {
			return nil, err
		}
	}
	if err := insertEvent(ctx, tx, o.ID, models.EventOrderUpdated, o.Status, o.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.FromStorage(err, "commit tx")
	}
	return o, nil
}

// ExportOrders помечает пачку заказов выгруженными и переводит в pending.
// Либо применяются все строки, либо ни одна.
func (s *Storage) ExportOrders(ctx context.Context, ids []string, at time.Time) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, errors.Wrapf(apperr.ErrBatchWrite, "begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	at = at.UTC()
	for _, id := range ids {
		o := &models.Order{ID: id}
		entry := lifecycle.ForceExport(o, at)

		tag, err := tx.Exec(ctx, `
UPDATE orders
SET status = $2, exported = TRUE, updated_at = $3
WHERE id = $1
`, id, o.Status, at)
		if err != nil {
			return 0, errors.Wrapf(apperr.ErrBatchWrite, "update order %s: %v", id, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, errors.Wrapf(apperr.ErrBatchWrite, "order %s not found", id)
		}
		if err := insertTimeline(ctx, tx, id, entry); err != nil {
			return 0, errors.Wrapf(apperr.ErrBatchWrite, "order %s: %v", id, err)
		}
		if err := insertEvent(ctx, tx, id, models.EventOrderExported, o.Status, at); err != nil {
			return 0, errors.Wrapf(apperr.ErrBatchWrite, "order %s: %v", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrapf(apperr.ErrBatchWrite, "commit tx: %v", err)
	}
	return len(ids), nil
}

func insertTimeline(ctx context.Context, tx pgx.Tx, orderID string, e models.TimelineEntry) error {
	_, err := tx.Exec(ctx, `
INSERT INTO order_timeline (order_id, status, description, created_at)
VALUES ($1,$2,$3,$4)
`, orderID, e.Status, e.Description, e.At.UTC())
	if err != nil {
		return apperr.FromStorage(err, "insert timeline entry")
	}
	return nil
}
