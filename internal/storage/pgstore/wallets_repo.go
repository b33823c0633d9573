package pgstore

import (
	"context"
	"strings"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// AppendWalletEntry записывает движение по кошельку и новый баланс.
// Транзакции одного агента сериализуются advisory-локом.
func (s *Storage) AppendWalletEntry(ctx context.Context, t *models.WalletTransaction) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.FromStorage(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.AgentID); err != nil {
		return apperr.FromStorage(err, "lock wallet")
	}

	var current string
	err = tx.QueryRow(ctx, `
SELECT COALESCE((
  SELECT balance::text FROM wallet_transactions WHERE agent_id = $1 ORDER BY seq DESC LIMIT 1
), '0')
`, t.AgentID).Scan(&current)
	if err != nil {
		return apperr.FromStorage(err, "select wallet balance")
	}
	bal, err := decimal.NewFromString(current)
	if err != nil {
		return errors.Wrap(err, "parse balance")
	}

	next, err := nextBalance(bal, t.Type, t.Amount)
	if err != nil {
		return err
	}
	t.Balance = next

	_, err = tx.Exec(ctx, `
INSERT INTO wallet_transactions (id, agent_id, agent_name, type, amount, balance, reference, created_at)
VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8)
`, t.ID, t.AgentID, t.AgentName, t.Type, t.Amount.String(), t.Balance.String(), t.Reference, t.CreatedAt.UTC())
	if err != nil {
		return apperr.FromStorage(err, "insert wallet transaction")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.FromStorage(err, "commit tx")
	}
	return nil
}

func nextBalance(cur decimal.Decimal, typ string, amount decimal.Decimal) (decimal.Decimal, error) {
	switch typ {
	case models.WalletCredit:
		return cur.Add(amount), nil
	case models.WalletDebit:
		if cur.LessThan(amount) {
			return decimal.Zero, apperr.Validation("Insufficient wallet balance", "amount")
		}
		return cur.Sub(amount), nil
	default:
		return decimal.Zero, apperr.Validation("Unknown transaction type", "type")
	}
}

func (s *Storage) WalletBalance(ctx context.Context, agentID string) (decimal.Decimal, error) {
	var current string
	err := s.db.QueryRow(ctx, `
SELECT COALESCE((
  SELECT balance::text FROM wallet_transactions WHERE agent_id = $1 ORDER BY seq DESC LIMIT 1
), '0')
`, agentID).Scan(&current)
	if err != nil {
		return decimal.Zero, apperr.FromStorage(err, "select wallet balance")
	}
	d, err := decimal.NewFromString(current)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse balance")
	}
	return d, nil
}

// ListWalletTransactions ищет по id агента, имени агента и id транзакции.
func (s *Storage) ListWalletTransactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error) {
	pattern := ""
	if q := strings.TrimSpace(search); q != "" {
		pattern = "%" + escapeLike(q) + "%"
	}
	rows, err := s.db.Query(ctx, `
SELECT id, agent_id, agent_name, type, amount::text, balance::text, reference, created_at
FROM wallet_transactions
WHERE ($1 = '' OR agent_id = $1)
  AND ($2 = '' OR agent_id ILIKE $2 OR agent_name ILIKE $2 OR id ILIKE $2)
ORDER BY seq DESC
`, agentID, pattern)
	if err != nil {
		return nil, apperr.FromStorage(err, "select wallet transactions")
	}
	defer rows.Close()

	out := []*models.WalletTransaction{}
	for rows.Next() {
		var t models.WalletTransaction
		var amount, balance string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.AgentName, &t.Type, &amount, &balance, &t.Reference, &t.CreatedAt); err != nil {
			return nil, apperr.FromStorage(err, "scan wallet transaction")
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse amount")
		}
		if t.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, errors.Wrap(err, "parse balance")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, apperr.FromStorage(rows.Err(), "rows")
	}
	return out, nil
}
