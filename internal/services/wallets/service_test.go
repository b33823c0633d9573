package wallets

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu  sync.Mutex
	txs []*models.WalletTransaction
}

func (r *memRepo) balance(agentID string) decimal.Decimal {
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].AgentID == agentID {
			return r.txs[i].Balance
		}
	}
	return decimal.Zero
}

func (r *memRepo) AppendWalletEntry(ctx context.Context, t *models.WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.balance(t.AgentID)
	if t.Type == models.WalletDebit {
		if cur.LessThan(t.Amount) {
			return apperr.Validation("Insufficient wallet balance", "amount")
		}
		t.Balance = cur.Sub(t.Amount)
	} else {
		t.Balance = cur.Add(t.Amount)
	}
	c := *t
	r.txs = append(r.txs, &c)
	return nil
}

func (r *memRepo) WalletBalance(ctx context.Context, agentID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balance(agentID), nil
}

func (r *memRepo) ListWalletTransactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.WalletTransaction{}
	q := strings.ToLower(search)
	for i := len(r.txs) - 1; i >= 0; i-- {
		t := r.txs[i]
		if agentID != "" && t.AgentID != agentID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.AgentName+" "+t.AgentID+" "+t.ID), q) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type agentsStub map[string]*models.Agent

func (a agentsStub) Get(ctx context.Context, id string) (*models.Agent, error) {
	if ag, ok := a[id]; ok {
		return ag, nil
	}
	return nil, errors.Wrap(apperr.ErrNotFound, "select agent")
}

func newService() *Service {
	return New(&memRepo{}, agentsStub{"a1": {ID: "a1", FirstName: "Kofi", LastName: "Mensah"}})
}

func TestPost_CreditDebitRunningBalance(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tx, err := svc.Post(ctx, models.WalletEntryInput{AgentID: "a1", Type: models.WalletCredit, Amount: decimal.RequireFromString("100")})
	require.NoError(t, err)
	require.Equal(t, "Kofi Mensah", tx.AgentName)
	require.True(t, decimal.RequireFromString("100").Equal(tx.Balance))

	tx, err = svc.Post(ctx, models.WalletEntryInput{AgentID: "a1", Type: models.WalletDebit, Amount: decimal.RequireFromString("40.51")})
	require.NoError(t, err)
	require.Equal(t, "40.51", tx.Amount.StringFixed(2))
	require.Equal(t, "59.49", tx.Balance.StringFixed(2))

	_, err = svc.Post(ctx, models.WalletEntryInput{AgentID: "a1", Type: models.WalletDebit, Amount: decimal.RequireFromString("60")})
	require.True(t, apperr.IsValidation(err))

	bal, err := svc.Balance(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "59.49", bal.StringFixed(2))

	txs, err := svc.Transactions(ctx, "", "kofi")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, models.WalletDebit, txs[0].Type)
}

func TestPost_Validation(t *testing.T) {
	svc := newService()

	_, err := svc.Post(context.Background(), models.WalletEntryInput{Type: "refund", Amount: decimal.Zero})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"agentId", "type", "amount"}, ve.Fields)

	_, err = svc.Post(context.Background(), models.WalletEntryInput{AgentID: "ghost", Type: models.WalletCredit, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPost_AmountMustFitColumn(t *testing.T) {
	svc := newService()

	for _, amount := range []string{"0.001", "0.004", "50.005", "10000000000"} {
		_, err := svc.Post(context.Background(), models.WalletEntryInput{AgentID: "a1", Type: models.WalletCredit, Amount: decimal.RequireFromString(amount)})
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve, amount)
		require.Equal(t, []string{"amount"}, ve.Fields, amount)
	}

	bal, err := svc.Balance(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}
