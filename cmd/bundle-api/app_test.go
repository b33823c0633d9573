package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/BundleBox/config"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/broker/messages"
	"github.com/BearBump/BundleBox/internal/cache/rediscache"
	"github.com/BearBump/BundleBox/internal/export"
	"github.com/BearBump/BundleBox/internal/lifecycle"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/orderfilter"
	"github.com/BearBump/BundleBox/internal/services/agents"
	"github.com/BearBump/BundleBox/internal/services/orders"
	"github.com/BearBump/BundleBox/internal/services/packages"
	"github.com/BearBump/BundleBox/internal/services/realtime"
	"github.com/BearBump/BundleBox/internal/services/wallets"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore: хранилище в памяти для всех сервисов API.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	packages map[string]*models.Package
	agents   map[string]*models.Agent
	txs      []*models.WalletTransaction
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]*models.Order{},
		packages: map[string]*models.Package{},
		agents:   map[string]*models.Agent{},
	}
}

func (s *memStore) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrap(apperr.ErrNotFound, "select order")
	}
	return o.Clone(), nil
}

func (s *memStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, o.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return orderfilter.Apply(all, f), nil
}

func (s *memStore) ListOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Order{}
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *memStore) UpdateOrder(ctx context.Context, id string, mutate models.OrderMutation) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrap(apperr.ErrNotFound, "select order for update")
	}
	o := cur.Clone()
	// mutate сам дописывает записи в o.Timeline
	if _, err := mutate(o); err != nil {
		return nil, err
	}
	s.orders[id] = o
	return o.Clone(), nil
}

func (s *memStore) ExportOrders(ctx context.Context, ids []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.orders[id]; !ok {
			return 0, errors.Wrapf(apperr.ErrBatchWrite, "order %s not found", id)
		}
	}
	for _, id := range ids {
		lifecycle.ForceExport(s.orders[id], at)
	}
	return len(ids), nil
}

func (s *memStore) CreatePackage(ctx context.Context, p *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.packages[p.ID] = &c
	return nil
}

func (s *memStore) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, errors.Wrap(apperr.ErrNotFound, "select package")
	}
	c := *p
	return &c, nil
}

func (s *memStore) ListPackages(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Package{}
	for _, p := range s.packages {
		if p.Carrier == carrier && (!activeOnly || p.Active) {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) UpdatePackage(ctx context.Context, p *models.Package) error {
	return s.CreatePackage(ctx, p)
}

func (s *memStore) DeletePackage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.packages, id)
	return nil
}

func (s *memStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.agents {
		if strings.EqualFold(x.Email, a.Email) {
			return errors.Wrap(apperr.ErrConflict, "insert agent")
		}
	}
	c := *a
	s.agents[a.ID] = &c
	return nil
}

func (s *memStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, errors.Wrap(apperr.ErrNotFound, "select agent")
	}
	c := *a
	return &c, nil
}

func (s *memStore) GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, errors.Wrap(apperr.ErrNotFound, "select agent")
}

func (s *memStore) ListAgents(ctx context.Context, status string) ([]*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Agent{}
	for _, a := range s.agents {
		if status == "" || a.ApprovalStatus == status {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) SetAgentApproval(ctx context.Context, id, status string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return errors.Wrap(apperr.ErrNotFound, "update agent")
	}
	a.ApprovalStatus, a.Active, a.UpdatedAt = status, active, at
	return nil
}

func (s *memStore) AppendWalletEntry(ctx context.Context, t *models.WalletTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balance(t.AgentID)
	if t.Type == models.WalletDebit {
		if bal.LessThan(t.Amount) {
			return apperr.Validation("Insufficient wallet balance", "amount")
		}
		t.Balance = bal.Sub(t.Amount)
	} else {
		t.Balance = bal.Add(t.Amount)
	}
	c := *t
	s.txs = append(s.txs, &c)
	return nil
}

func (s *memStore) balance(agentID string) decimal.Decimal {
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].AgentID == agentID {
			return s.txs[i].Balance
		}
	}
	return decimal.Zero
}

func (s *memStore) WalletBalance(ctx context.Context, agentID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance(agentID), nil
}

func (s *memStore) ListWalletTransactions(ctx context.Context, agentID, search string) ([]*models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.WalletTransaction{}
	for i := len(s.txs) - 1; i >= 0; i-- {
		if agentID == "" || s.txs[i].AgentID == agentID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func newTestDeps(t *testing.T) (apiDeps, *memStore) {
	t.Helper()
	st := newMemStore()
	rc := rediscache.New(miniredis.RunT(t).Addr())

	agentsSvc := agents.New(st)
	ordersSvc := orders.New(st, rc, time.Minute, export.NewCSV("GHS"))
	d := apiDeps{
		orders:   ordersSvc,
		packages: packages.New(st, rc, time.Minute),
		agents:   agentsSvc,
		wallets:  wallets.New(st, agentsSvc),
		hub:      realtime.New(ordersSvc),
		issuer:   auth.NewIssuer("test-secret", time.Hour),
	}
	_, err := agentsSvc.EnsureAdmin(context.Background(), models.AgentInput{
		Email: "admin@bundlebox.test", Password: "admin-pass", FirstName: "Root", LastName: "Admin", Phone: "0240000000",
	})
	require.NoError(t, err)
	return d, st
}

type client struct {
	t   *testing.T
	url string
}

func (c client) do(method, path, token string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, out
}

func (c client) login(email, password string) string {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal(body, &out))
	return out.Token
}

func TestRouter_OrderLifecycle(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(newRouter(d, ""))
	defer srv.Close()
	c := client{t: t, url: srv.URL}

	resp, _ := c.do(http.MethodGet, "/api/orders?agentId=x", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := c.do(http.MethodPost, "/api/agents", "", map[string]string{
		"email": "kofi@example.com", "password": "secret1", "firstName": "Kofi", "lastName": "Mensah", "phone": "0241234567",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var reg struct {
		AgentID string `json:"agentId"`
	}
	require.NoError(t, json.Unmarshal(body, &reg))

	admin := c.login("admin@bundlebox.test", "admin-pass")
	resp, _ = c.do(http.MethodPost, "/api/admin/agents/"+reg.AgentID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agent := c.login("kofi@example.com", "secret1")

	resp, body = c.do(http.MethodPost, "/api/orders", agent, map[string]any{
		"agentId": reg.AgentID, "agentName": "Kofi Mensah", "customerPhone": "0551234567", "product": "MTN 5GB",
		"amount": "50.00", "paymentMethod": "momo", "paymentNetwork": "mtn", "transactionId": "TX1", "senderName": "Kofi",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = c.do(http.MethodGet, "/api/orders?agentId="+reg.AgentID+"&status=review", agent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []*models.Order
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	require.Equal(t, models.StatusReview, list[0].Status)

	resp, _ = c.do(http.MethodPost, "/api/admin/orders/export", agent, map[string]any{"orderIds": []string{created.OrderID}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = c.do(http.MethodPost, "/api/admin/orders/export", admin, map[string]any{"orderIds": []string{created.OrderID}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, "1", resp.Header.Get("X-Exported-Count"))
	require.Contains(t, string(body), "GHS 50.00")

	resp, body = c.do(http.MethodGet, "/api/orders/"+created.OrderID+"?agentId="+reg.AgentID, agent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Order
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, models.StatusPending, got.Status)
	require.True(t, got.Exported)

	resp, _ = c.do(http.MethodPatch, "/api/admin/orders/"+created.OrderID, admin, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodPatch, "/api/orders/"+created.OrderID+"?agentId="+reg.AgentID, agent, map[string]any{"status": "review"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_PackagesAndWallets(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(newRouter(d, ""))
	defer srv.Close()
	c := client{t: t, url: srv.URL}
	admin := c.login("admin@bundlebox.test", "admin-pass")

	resp, body := c.do(http.MethodPost, "/api/packages", admin, map[string]any{
		"carrier": "MTN", "name": "5GB Bundle", "data": "5GB", "validity": "30 days", "price": "25",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = c.do(http.MethodGet, "/api/packages?active=true", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "5GB Bundle")

	adminAgent, err := d.agents.Authenticate(context.Background(), "admin@bundlebox.test", "admin-pass")
	require.NoError(t, err)
	resp, body = c.do(http.MethodPost, "/api/admin/wallets/"+adminAgent.ID+"/transactions", admin, map[string]any{
		"type": "credit", "amount": "100",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = c.do(http.MethodGet, "/api/wallets/"+adminAgent.ID, admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"balance":"100"`)
}

func TestHandleOrderChanged(t *testing.T) {
	d, st := newTestDeps(t)
	now := time.Now().UTC()
	require.NoError(t, st.CreateOrder(context.Background(), &models.Order{ID: "ord-1", AgentID: "A1", Status: models.StatusReview, CreatedAt: now}))

	got := make(chan []*models.Order, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unsubscribe, err := d.hub.Subscribe(ctx, func(list []*models.Order) { got <- list })
	require.NoError(t, err)
	defer unsubscribe()
	<-got

	require.NoError(t, handleOrderChanged(ctx, d, []byte("not json")))

	b, err := json.Marshal(messages.OrderChanged{EventID: 1, OrderID: "ord-1", Kind: models.EventOrderCreated})
	require.NoError(t, err)
	require.NoError(t, handleOrderChanged(ctx, d, b))

	select {
	case list := <-got:
		require.Len(t, list, 1)
	case <-time.After(time.Second):
		t.Fatal("no realtime delivery after order changed")
	}
}

func TestApiSettingsFromConfig_Defaults(t *testing.T) {
	s := apiSettingsFromConfig(&config.Config{})
	require.Equal(t, ":8080", s.httpAddr)
	require.Equal(t, "bundle-api", s.consumerGroup)
	require.Equal(t, "order.changed", s.topic)
	require.Equal(t, 10*time.Minute, s.orderCacheTTL)
	require.Equal(t, 12*time.Hour, s.sessionTTL)
	require.Equal(t, "GHS", s.currency)
}

type fakeConsumer struct {
	values [][]byte
}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunBundleAPI_SwaggerServed(t *testing.T) {
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	d, _ := newTestDeps(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := bundleAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "t",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runBundleAPI(ctx, opts, d, fakeConsumer{values: [][]byte{[]byte("{}")}})
	}()

	httpAddr := <-addrCh
	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunBundleAPI_MissingSwagger(t *testing.T) {
	d, _ := newTestDeps(t)
	err := runBundleAPI(context.Background(), bundleAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "nope.json"),
	}, d, nil)
	require.ErrorContains(t, err, "swagger file not found")
}
