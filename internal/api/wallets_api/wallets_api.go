package wallets_api

import (
	"context"
	"net/http"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Service interface {
	Post(ctx context.Context, in models.WalletEntryInput) (*models.WalletTransaction, error)
	Balance(ctx context.Context, agentID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error)
}

type WalletsAPI struct {
	svc Service
}

func New(svc Service) *WalletsAPI {
	return &WalletsAPI{svc: svc}
}

func (a *WalletsAPI) Routes(r chi.Router) {
	r.Get("/wallets/{agentId}", a.wallet)
}

func (a *WalletsAPI) AdminRoutes(r chi.Router) {
	r.Get("/wallets/transactions", a.allTransactions)
	r.Post("/wallets/{agentId}/transactions", a.post)
	r.Get("/wallets/{agentId}/transactions", a.transactions)
}

type postRequest struct {
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (a *WalletsAPI) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	t, err := a.svc.Post(r.Context(), models.WalletEntryInput{
		AgentID:   chi.URLParam(r, "agentId"),
		Type:      req.Type,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (a *WalletsAPI) transactions(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Transactions(r.Context(), chi.URLParam(r, "agentId"), r.URL.Query().Get("search"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *WalletsAPI) allTransactions(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Transactions(r.Context(), "", r.URL.Query().Get("search"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type walletResponse struct {
	AgentID      string                      `json:"agentId"`
	Balance      decimal.Decimal             `json:"balance"`
	Transactions []*models.WalletTransaction `json:"transactions"`
}

func (a *WalletsAPI) wallet(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if !auth.FromContext(r.Context()).CanActFor(agentID) {
		httpx.WriteError(w, r, errors.Wrap(apperr.ErrForbidden, "foreign wallet"))
		return
	}
	balance, err := a.svc.Balance(r.Context(), agentID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	txs, err := a.svc.Transactions(r.Context(), agentID, "")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, walletResponse{AgentID: agentID, Balance: balance, Transactions: txs})
}
