package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/cache"
	"github.com/BearBump/BundleBox/internal/lifecycle"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
	ListOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, id string, mutate models.OrderMutation) (*models.Order, error)
	ExportOrders(ctx context.Context, ids []string, at time.Time) (int, error)
}

// Exporter собирает файл выгрузки. Его ошибка не откатывает уже проведённую пачку.
type Exporter interface {
	Render(orders []*models.Order) ([]byte, error)
	FileName(at time.Time) string
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	orderTTL time.Duration
	exporter Exporter

	now   func() time.Time
	newID func() string
}

func New(repo Repository, c cache.BytesCache, orderTTL time.Duration, exp Exporter) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		orderTTL: orderTTL,
		exporter: exp,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// ExportResult: итог ExportAndSettle. FileErr заполнен, если пачка проведена, а файл не собрался.
type ExportResult struct {
	Count    int
	File     []byte
	FileName string
	FileErr  error
}

func (s *Service) Create(ctx context.Context, d models.OrderDraft) (*models.Order, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	status := models.StatusReview
	if d.Status != "" {
		if !lifecycle.Valid(d.Status) {
			return nil, apperr.Validation(fmt.Sprintf("Unknown status %q", d.Status), "status")
		}
		status = d.Status
	}

	now := s.now()
	o := &models.Order{
		ID:             s.newID(),
		AgentID:        strings.TrimSpace(d.AgentID),
		AgentName:      strings.TrimSpace(d.AgentName),
		CustomerPhone:  strings.TrimSpace(d.CustomerPhone),
		Product:        strings.TrimSpace(d.Product),
		Amount:         d.Amount,
		PaymentMethod:  d.PaymentMethod,
		PaymentNetwork: d.PaymentNetwork,
		TransactionID:  strings.TrimSpace(d.TransactionID),
		SenderName:     d.SenderName,
		Status:         status,
		Exported:       false,
		Notes:          d.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
		Timeline:       []models.TimelineEntry{lifecycle.Created(now)},
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		slog.Error("create order", "agent_id", o.AgentID, "error", err.Error())
		return nil, err
	}
	slog.Info("order created", "order_id", o.ID, "agent_id", o.AgentID, "status", o.Status)
	s.cacheOrder(ctx, o)
	return o, nil
}

func validateDraft(d models.OrderDraft) error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("agentId", d.AgentID)
	check("product", d.Product)
	if d.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	check("paymentMethod", d.PaymentMethod)
	check("paymentNetwork", d.PaymentNetwork)
	check("transactionId", d.TransactionID)
	check("senderName", d.SenderName)
	if err := apperr.MissingFields(missing); err != nil {
		return err
	}
	if !models.ValidMoney(d.Amount) {
		return apperr.Validation("Amount must be greater than 0 with at most 2 decimal places", "amount")
	}
	return nil
}

// Get возвращает заказ. Если scopeAgentID задан, чужой заказ выглядит как отсутствующий.
func (s *Service) Get(ctx context.Context, id, scopeAgentID string) (*models.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("Order ID is required", "orderId")
	}

	o, ok := s.cachedOrder(ctx, id)
	if !ok {
		var err error
		o, err = s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		s.fillCache(ctx, o)
	}

	if scopeAgentID != "" && o.AgentID != scopeAgentID {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	return s.repo.ListOrders(ctx, f)
}

// Update применяет патч. Смена статуса идёт через граф переходов и пишется в таймлайн
// в той же транзакции, что и остальные поля.
func (s *Service) Update(ctx context.Context, id string, p models.OrderPatch, scopeAgentID string) (*models.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("Order ID is required", "orderId")
	}
	if err := validatePatch(p); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateOrder(ctx, id, func(o *models.Order) ([]models.TimelineEntry, error) {
		if scopeAgentID != "" && o.AgentID != scopeAgentID {
			return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
		}
		from := o.Status
		o.ApplyPatch(p)
		if scopeAgentID != "" {
			o.AgentID = scopeAgentID
		}
		if p.Status == nil {
			return nil, nil
		}
		e, err := lifecycle.Transition(o, *p.Status, s.now())
		if err != nil {
			slog.Warn("order transition rejected", "order_id", id, "from", from, "to", *p.Status)
			return nil, err
		}
		if e == nil {
			return nil, nil
		}
		return []models.TimelineEntry{*e}, nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("order updated", "order_id", updated.ID, "status", updated.Status)
	s.cacheOrder(ctx, updated)
	return updated, nil
}

func validatePatch(p models.OrderPatch) error {
	if p.Amount != nil && !models.ValidMoney(*p.Amount) {
		return apperr.Validation("Amount must be greater than 0 with at most 2 decimal places", "amount")
	}
	var empty []string
	check := func(name string, v *string) {
		if v != nil && strings.TrimSpace(*v) == "" {
			empty = append(empty, name)
		}
	}
	check("agentId", p.AgentID)
	check("product", p.Product)
	check("status", p.Status)
	if len(empty) > 0 {
		return apperr.Validation("Fields cannot be empty", empty...)
	}
	return nil
}

// ExportAndSettle проводит пачку одной транзакцией, затем собирает файл выгрузки.
// Ошибка файла возвращается в ExportResult.FileErr и не откатывает пачку.
func (s *Service) ExportAndSettle(ctx context.Context, ids []string) (*ExportResult, error) {
	clean := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		return nil, apperr.Validation("No Orders Selected", "orderIds")
	}

	at := s.now()
	n, err := s.repo.ExportOrders(ctx, clean, at)
	if err != nil {
		slog.Error("export orders", "count", len(clean), "error", err.Error())
		return nil, err
	}
	slog.Info("orders exported", "count", n)
	s.dropCached(ctx, clean)

	res := &ExportResult{Count: n}
	if s.exporter == nil {
		return res, nil
	}

	orders, err := s.repo.ListOrdersByIDs(ctx, clean)
	if err != nil {
		res.FileErr = errors.Wrap(err, "load exported orders")
		slog.Warn("export file skipped", "error", err.Error())
		return res, nil
	}
	file, err := s.exporter.Render(orders)
	if err != nil {
		res.FileErr = errors.Wrap(err, "render export file")
		slog.Warn("export file failed", "error", err.Error())
		return res, nil
	}
	res.File = file
	res.FileName = s.exporter.FileName(at)
	return res, nil
}

// Refresh перечитывает заказ в кэш; вызывается консьюмером order.changed.
func (s *Service) Refresh(ctx context.Context, id string) error {
	if s.cache == nil || s.orderTTL <= 0 {
		return nil
	}
	o, err := s.repo.GetOrder(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		s.dropCached(ctx, []string{id})
		return nil
	}
	if err != nil {
		return err
	}
	s.cacheOrder(ctx, o)
	return nil
}

// ReviewCount считает заказы, ждущие проверки.
func ReviewCount(orders []*models.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == models.StatusReview {
			n++
		}
	}
	return n
}

func (s *Service) cachedOrder(ctx context.Context, id string) (*models.Order, bool) {
	if s.cache == nil || s.orderTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, orderKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var o models.Order
	if json.Unmarshal(b, &o) != nil {
		return nil, false
	}
	return &o, true
}

func (s *Service) cacheOrder(ctx context.Context, o *models.Order) {
	if s.cache == nil || s.orderTTL <= 0 {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, orderKey(o.ID), b, s.orderTTL); err != nil {
		slog.Warn("cache order", "order_id", o.ID, "error", err.Error())
	}
}

// fillCache кладёт прочитанный заказ, только если параллельная запись ещё не положила
// свежую версию: снимок, прочитанный до её коммита, не должен её перетереть.
func (s *Service) fillCache(ctx context.Context, o *models.Order) {
	if s.cache == nil || s.orderTTL <= 0 {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if _, err := s.cache.SetIfAbsent(ctx, orderKey(o.ID), b, s.orderTTL); err != nil {
		slog.Warn("cache order", "order_id", o.ID, "error", err.Error())
	}
}

func (s *Service) dropCached(ctx context.Context, ids []string) {
	if s.cache == nil || s.orderTTL <= 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, orderKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("cache invalidate", "count", len(keys), "error", err.Error())
	}
}

func orderKey(id string) string {
	return "order:" + id + ":current"
}
