package wallets

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	AppendWalletEntry(ctx context.Context, t *models.WalletTransaction) error
	WalletBalance(ctx context.Context, agentID string) (decimal.Decimal, error)
	ListWalletTransactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error)
}

type AgentGetter interface {
	Get(ctx context.Context, id string) (*models.Agent, error)
}

type Service struct {
	repo   Repository
	agents AgentGetter
	now    func() time.Time
}

func New(repo Repository, agents AgentGetter) *Service {
	return &Service{
		repo:   repo,
		agents: agents,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Post проводит пополнение или списание. Баланс после операции считает хранилище
// под блокировкой кошелька; списание сверх остатка отклоняется.
func (s *Service) Post(ctx context.Context, in models.WalletEntryInput) (*models.WalletTransaction, error) {
	in.AgentID = strings.TrimSpace(in.AgentID)
	var bad []string
	if in.AgentID == "" {
		bad = append(bad, "agentId")
	}
	if in.Type != models.WalletCredit && in.Type != models.WalletDebit {
		bad = append(bad, "type")
	}
	if !models.ValidMoney(in.Amount) {
		bad = append(bad, "amount")
	}
	if len(bad) > 0 {
		return nil, apperr.Validation("Invalid transaction", bad...)
	}

	name := in.AgentName
	if s.agents != nil {
		a, err := s.agents.Get(ctx, in.AgentID)
		if err != nil {
			return nil, err
		}
		name = a.DisplayName()
	}

	t := &models.WalletTransaction{
		ID:        uuid.NewString(),
		AgentID:   in.AgentID,
		AgentName: name,
		Type:      in.Type,
		Amount:    in.Amount,
		Reference: strings.TrimSpace(in.Reference),
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendWalletEntry(ctx, t); err != nil {
		return nil, err
	}
	slog.Info("wallet transaction", "agent_id", t.AgentID, "type", t.Type, "amount", t.Amount.String(), "balance", t.Balance.String())
	return t, nil
}

func (s *Service) Balance(ctx context.Context, agentID string) (decimal.Decimal, error) {
	return s.repo.WalletBalance(ctx, agentID)
}

func (s *Service) Transactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error) {
	return s.repo.ListWalletTransactions(ctx, agentID, search)
}
