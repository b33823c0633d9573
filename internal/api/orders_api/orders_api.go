package orders_api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, d models.OrderDraft) (*models.Order, error)
	Get(ctx context.Context, id, scopeAgentID string) (*models.Order, error)
	List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
	Update(ctx context.Context, id string, p models.OrderPatch, scopeAgentID string) (*models.Order, error)
	ExportAndSettle(ctx context.Context, ids []string) (*orders.ExportResult, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, onChange func(orders []*models.Order)) (func(), error)
}

type OrdersAPI struct {
	svc Service
	hub Subscriber
}

func New(svc Service, hub Subscriber) *OrdersAPI {
	return &OrdersAPI{svc: svc, hub: hub}
}

// Routes: маршруты агента; вызывающий уже навесил auth.Middleware.
func (a *OrdersAPI) Routes(r chi.Router) {
	r.Post("/orders", a.create)
	r.Get("/orders", a.list)
	r.Get("/orders/{orderId}", a.get)
	r.Patch("/orders/{orderId}", a.update)
}

// AdminRoutes: маршруты под auth.RequireAdmin.
func (a *OrdersAPI) AdminRoutes(r chi.Router) {
	r.Get("/orders", a.adminList)
	r.Patch("/orders/{orderId}", a.adminUpdate)
	r.Post("/orders/export", a.export)
	r.Get("/orders/stream", a.stream)
}

type createOrderRequest struct {
	AgentID        string          `json:"agentId"`
	AgentName      string          `json:"agentName"`
	CustomerPhone  string          `json:"customerPhone"`
	Product        string          `json:"product"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentNetwork string          `json:"paymentNetwork"`
	TransactionID  string          `json:"transactionId"`
	SenderName     string          `json:"senderName"`
	Status         string          `json:"status,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type orderRef struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
}

func (a *OrdersAPI) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	sess := auth.FromContext(r.Context())
	if req.AgentID != "" && !sess.CanActFor(req.AgentID) {
		httpx.WriteError(w, r, errors.Wrap(apperr.ErrForbidden, "foreign agent id"))
		return
	}
	// явный статус при создании разрешён только админу
	if !sess.IsAdmin() {
		req.Status = ""
	}

	o, err := a.svc.Create(r.Context(), models.OrderDraft{
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
		CustomerPhone:  req.CustomerPhone,
		Product:        req.Product,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentNetwork: req.PaymentNetwork,
		TransactionID:  req.TransactionID,
		SenderName:     req.SenderName,
		Status:         req.Status,
		Notes:          req.Notes,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderRef{Success: true, OrderID: o.ID})
}

// scopedAgent достаёт обязательный ?agentId= и проверяет, что сессия вправе за него действовать.
func scopedAgent(r *http.Request) (string, error) {
	agentID := strings.TrimSpace(r.URL.Query().Get("agentId"))
	if agentID == "" {
		return "", apperr.Validation("Agent ID is required", "agentId")
	}
	if !auth.FromContext(r.Context()).CanActFor(agentID) {
		return "", errors.Wrap(apperr.ErrForbidden, "foreign agent id")
	}
	return agentID, nil
}

func (a *OrdersAPI) list(w http.ResponseWriter, r *http.Request) {
	agentID, err := scopedAgent(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	f, err := ParseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	f.AgentID = agentID

	out, err := a.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) get(w http.ResponseWriter, r *http.Request) {
	agentID, err := scopedAgent(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	o, err := a.svc.Get(r.Context(), chi.URLParam(r, "orderId"), agentID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

type patchOrderRequest struct {
	AgentID        *string          `json:"agentId"`
	AgentName      *string          `json:"agentName"`
	CustomerPhone  *string          `json:"customerPhone"`
	Product        *string          `json:"product"`
	Amount         *decimal.Decimal `json:"amount"`
	PaymentMethod  *string          `json:"paymentMethod"`
	PaymentNetwork *string          `json:"paymentNetwork"`
	TransactionID  *string          `json:"transactionId"`
	SenderName     *string          `json:"senderName"`
	Status         *string          `json:"status"`
	Exported       *bool            `json:"exported"`
	Notes          *string          `json:"notes"`
}

func (p patchOrderRequest) toPatch() models.OrderPatch {
	return models.OrderPatch{
		AgentID:        p.AgentID,
		AgentName:      p.AgentName,
		CustomerPhone:  p.CustomerPhone,
		Product:        p.Product,
		Amount:         p.Amount,
		PaymentMethod:  p.PaymentMethod,
		PaymentNetwork: p.PaymentNetwork,
		TransactionID:  p.TransactionID,
		SenderName:     p.SenderName,
		Status:         p.Status,
		Exported:       p.Exported,
		Notes:          p.Notes,
	}
}

func (a *OrdersAPI) update(w http.ResponseWriter, r *http.Request) {
	agentID, err := scopedAgent(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req patchOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	patch := req.toPatch()
	// флаг выгрузки меняет только админская выгрузка
	patch.Exported = nil

	o, err := a.svc.Update(r.Context(), chi.URLParam(r, "orderId"), patch, agentID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderRef{Success: true, OrderID: o.ID})
}

func (a *OrdersAPI) adminList(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	f.AgentID = strings.TrimSpace(r.URL.Query().Get("agentId"))

	out, err := a.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) adminUpdate(w http.ResponseWriter, r *http.Request) {
	var req patchOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	o, err := a.svc.Update(r.Context(), chi.URLParam(r, "orderId"), req.toPatch(), "")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderRef{Success: true, OrderID: o.ID})
}

type exportRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type exportResponse struct {
	Success     bool   `json:"success"`
	Count       int    `json:"count"`
	ExportError string `json:"exportError,omitempty"`
}

// export проводит пачку и отдаёт CSV. Если пачка проведена, а файл не собрался,
// отвечает 200 с JSON и текстом exportError.
func (a *OrdersAPI) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := a.svc.ExportAndSettle(r.Context(), req.OrderIDs)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if res.File == nil {
		body := exportResponse{Success: true, Count: res.Count}
		if res.FileErr != nil {
			body.ExportError = "Export file generation failed"
		}
		httpx.WriteJSON(w, http.StatusOK, body)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName+`"`)
	w.Header().Set("X-Exported-Count", strconv.Itoa(res.Count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.File)
}

// ParseFilter читает status/search/from/to. Даты в RFC3339 или YYYY-MM-DD;
// голая дата в to означает конец дня.
func ParseFilter(r *http.Request) (models.OrderFilter, error) {
	q := r.URL.Query()
	f := models.OrderFilter{
		Status: strings.TrimSpace(q.Get("status")),
		Search: q.Get("search"),
	}
	var err error
	if f.From, err = parseBound(q.Get("from"), false); err != nil {
		return f, apperr.Validation("Invalid date", "from")
	}
	if f.To, err = parseBound(q.Get("to"), true); err != nil {
		return f, apperr.Validation("Invalid date", "to")
	}
	return f, nil
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
