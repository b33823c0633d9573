package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WalletCredit = "credit"
	WalletDebit  = "debit"
)

type WalletTransaction struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	AgentName string          `json:"agentName"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type WalletEntryInput struct {
	AgentID   string
	AgentName string
	Type      string
	Amount    decimal.Decimal
	Reference string
}
