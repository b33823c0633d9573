package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/BundleBox/internal/api/agents_api"
	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/api/orders_api"
	"github.com/BearBump/BundleBox/internal/api/packages_api"
	"github.com/BearBump/BundleBox/internal/api/wallets_api"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/broker/messages"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/services/agents"
	"github.com/BearBump/BundleBox/internal/services/orders"
	"github.com/BearBump/BundleBox/internal/services/packages"
	"github.com/BearBump/BundleBox/internal/services/realtime"
	"github.com/BearBump/BundleBox/internal/services/wallets"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type bundleAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type apiDeps struct {
	orders   *orders.Service
	packages *packages.Service
	agents   *agents.Service
	wallets  *wallets.Service
	hub      *realtime.Hub
	issuer   *auth.Issuer
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// notifyingOrders после каждого успешного изменения рассылает свежий список подписчикам
// этого процесса, не дожидаясь события из Kafka.
type notifyingOrders struct {
	*orders.Service
	hub *realtime.Hub
}

func (n notifyingOrders) notify(ctx context.Context) {
	go func() {
		if err := n.hub.Notify(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("realtime notify", "error", err.Error())
		}
	}()
}

func (n notifyingOrders) Create(ctx context.Context, d models.OrderDraft) (*models.Order, error) {
	o, err := n.Service.Create(ctx, d)
	if err == nil {
		n.notify(ctx)
	}
	return o, err
}

func (n notifyingOrders) Update(ctx context.Context, id string, p models.OrderPatch, scopeAgentID string) (*models.Order, error) {
	o, err := n.Service.Update(ctx, id, p, scopeAgentID)
	if err == nil {
		n.notify(ctx)
	}
	return o, err
}

func (n notifyingOrders) ExportAndSettle(ctx context.Context, ids []string) (*orders.ExportResult, error) {
	res, err := n.Service.ExportAndSettle(ctx, ids)
	if err == nil {
		n.notify(ctx)
	}
	return res, err
}

func newRouter(d apiDeps, swaggerPath string) http.Handler {
	ordersAPI := orders_api.New(notifyingOrders{Service: d.orders, hub: d.hub}, d.hub)
	packagesAPI := packages_api.New(d.packages)
	agentsAPI := agents_api.New(d.agents, d.issuer)
	walletsAPI := wallets_api.New(d.wallets)

	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.LoggerMiddleware)
	r.Use(middleware.Recoverer)

	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger.json"),
		))
	}

	r.Route("/api", func(r chi.Router) {
		agentsAPI.PublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.issuer, d.agents))
			ordersAPI.Routes(r)
			packagesAPI.Routes(r)
			walletsAPI.Routes(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				packagesAPI.AdminRoutes(r)
			})
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				ordersAPI.AdminRoutes(r)
				agentsAPI.AdminRoutes(r)
				walletsAPI.AdminRoutes(r)
			})
		})
	})
	return r
}

// handleOrderChanged обновляет кэш заказа и будит подписчиков. Ошибки только логируются,
// чтобы одно битое сообщение не останавливало консьюмер.
func handleOrderChanged(ctx context.Context, d apiDeps, value []byte) error {
	var m messages.OrderChanged
	if err := json.Unmarshal(value, &m); err != nil {
		slog.Error("decode order changed", "error", err.Error())
		return nil
	}
	if err := d.orders.Refresh(ctx, m.OrderID); err != nil {
		slog.Warn("refresh cached order", "order_id", m.OrderID, "error", err.Error())
	}
	if err := d.hub.Notify(ctx); err != nil {
		slog.Warn("realtime notify", "order_id", m.OrderID, "error", err.Error())
	}
	return nil
}

func runBundleAPI(ctx context.Context, opts bundleAPIOpts, d apiDeps, consumer kafkaConsumer) error {
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(d, opts.swaggerPath))
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.Consume(ctx, func(_key, value []byte) error {
				return handleOrderChanged(ctx, d, value)
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
