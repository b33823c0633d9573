package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказа.
const (
	StatusReview    = "review"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Метки записей таймлайна, которые не являются статусами заказа.
const (
	TimelineCreated  = "created"
	TimelineExported = "exported"
)

// StatusAll в фильтре означает "любой статус".
const StatusAll = "all"

type Order struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agentId"`
	AgentName     string          `json:"agentName"`
	CustomerPhone string          `json:"customerPhone"`
	Product       string          `json:"product"`
	Amount        decimal.Decimal `json:"amount"`

	PaymentMethod  string `json:"paymentMethod"`
	PaymentNetwork string `json:"paymentNetwork"`
	TransactionID  string `json:"transactionId"`
	SenderName     string `json:"senderName"`

	Status   string `json:"status"`
	Exported bool   `json:"exported"`
	Notes    string `json:"notes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Timeline []TimelineEntry `json:"timeline"`
}

// TimelineEntry — неизменяемая запись аудита заказа.
type TimelineEntry struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	At          time.Time `json:"timestamp"`
}

// OrderDraft: данные агента для создания заказа.
type OrderDraft struct {
	AgentID        string
	AgentName      string
	CustomerPhone  string
	Product        string
	Amount         decimal.Decimal
	PaymentMethod  string
	PaymentNetwork string
	TransactionID  string
	SenderName     string
	Status         string
	Notes          string
}

// OrderPatch описывает частичное обновление. nil означает "не менять".
type OrderPatch struct {
	AgentID        *string
	AgentName      *string
	CustomerPhone  *string
	Product        *string
	Amount         *decimal.Decimal
	PaymentMethod  *string
	PaymentNetwork *string
	TransactionID  *string
	SenderName     *string
	Status         *string
	Exported       *bool
	Notes          *string
}

type OrderFilter struct {
	AgentID string
	Status  string
	From    time.Time
	To      time.Time
	Search  string
}

// OrderMutation вызывается хранилищем внутри транзакции над заблокированной строкой.
// Возвращённые записи таймлайна дописываются в конец вместе с изменением заказа.
type OrderMutation func(o *Order) ([]TimelineEntry, error)

// Clone делает глубокую копию (таймлайн копируется).
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return &c
}

// ApplyPatch переносит все поля патча, кроме статуса: статус меняется только через lifecycle.
func (o *Order) ApplyPatch(p OrderPatch) {
	if p.AgentID != nil {
		o.AgentID = *p.AgentID
	}
	if p.AgentName != nil {
		o.AgentName = *p.AgentName
	}
	if p.CustomerPhone != nil {
		o.CustomerPhone = *p.CustomerPhone
	}
	if p.Product != nil {
		o.Product = *p.Product
	}
	if p.Amount != nil {
		o.Amount = *p.Amount
	}
	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.PaymentNetwork != nil {
		o.PaymentNetwork = *p.PaymentNetwork
	}
	if p.TransactionID != nil {
		o.TransactionID = *p.TransactionID
	}
	if p.SenderName != nil {
		o.SenderName = *p.SenderName
	}
	if p.Exported != nil {
		o.Exported = *p.Exported
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
}
