package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/BundleBox/config"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/broker/kafka"
	"github.com/BearBump/BundleBox/internal/cache/rediscache"
	"github.com/BearBump/BundleBox/internal/export"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/services/agents"
	"github.com/BearBump/BundleBox/internal/services/orders"
	"github.com/BearBump/BundleBox/internal/services/packages"
	"github.com/BearBump/BundleBox/internal/services/realtime"
	"github.com/BearBump/BundleBox/internal/services/wallets"
	"github.com/BearBump/BundleBox/internal/storage/pgstore"
)

type bundleAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     bundleAPIOpts
	deps     apiDeps
	consumer *kafka.Consumer
	cache    *rediscache.RedisCache
	closeDB  func()
}

// apiSettings хранит параметры API после подстановки значений по умолчанию.
type apiSettings struct {
	httpAddr        string
	consumerGroup   string
	topic           string
	orderCacheTTL   time.Duration
	packageCacheTTL time.Duration
	sessionTTL      time.Duration
	currency        string
}

func apiSettingsFromConfig(cfg *config.Config) apiSettings {
	s := apiSettings{
		httpAddr:        cfg.BundleBox.HTTPAddr,
		consumerGroup:   cfg.BundleBox.KafkaConsumerGroup,
		topic:           cfg.Kafka.OrderChangedTopicName,
		orderCacheTTL:   time.Duration(cfg.BundleBox.OrderCacheTTLSeconds) * time.Second,
		packageCacheTTL: time.Duration(cfg.BundleBox.PackageCacheTTLSeconds) * time.Second,
		sessionTTL:      time.Duration(cfg.BundleBox.SessionTTLMinutes) * time.Minute,
		currency:        cfg.BundleBox.Currency,
	}
	if s.httpAddr == "" {
		s.httpAddr = ":8080"
	}
	if s.consumerGroup == "" {
		s.consumerGroup = "bundle-api"
	}
	if s.topic == "" {
		s.topic = "order.changed"
	}
	if s.orderCacheTTL <= 0 {
		s.orderCacheTTL = 10 * time.Minute
	}
	if s.packageCacheTTL <= 0 {
		s.packageCacheTTL = 5 * time.Minute
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 12 * time.Hour
	}
	if s.currency == "" {
		s.currency = "GHS"
	}
	return s
}

func mustBootstrapBundleAPI() *bundleAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	if cfg.BundleBox.JWTSecret == "" {
		panic("jwt_secret is required (bundlebox.jwt_secret or BUNDLEBOX_JWT_SECRET)")
	}
	s := apiSettingsFromConfig(cfg)

	// pgstore.New накатывает миграции
	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	rc := rediscache.New(cfg.Redis.Address())
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rc.Ping(pingCtx); err != nil {
		// кэш необязателен: без Redis запросы идут прямо в Postgres
		slog.Warn("redis unavailable", "addr", cfg.Redis.Address(), "error", err.Error())
	}
	pingCancel()

	agentsSvc := agents.New(st)
	ordersSvc := orders.New(st, rc, s.orderCacheTTL, export.NewCSV(s.currency))
	deps := apiDeps{
		orders:   ordersSvc,
		packages: packages.New(st, rc, s.packageCacheTTL),
		agents:   agentsSvc,
		wallets:  wallets.New(st, agentsSvc),
		hub:      realtime.New(ordersSvc),
		issuer:   auth.NewIssuer(cfg.BundleBox.JWTSecret, s.sessionTTL),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if cfg.BundleBox.AdminEmail != "" {
		_, err := agentsSvc.EnsureAdmin(ctx, models.AgentInput{
			Email:     cfg.BundleBox.AdminEmail,
			Password:  cfg.BundleBox.AdminPassword,
			FirstName: "Bundle",
			LastName:  "Admin",
			Phone:     "0000000000",
		})
		if err != nil {
			panic(fmt.Sprintf("не удалось создать администратора, %v", err))
		}
	} else {
		slog.Warn("admin_email is not set, no admin account ensured")
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Addrs(), s.topic, s.consumerGroup)

	return &bundleAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: bundleAPIOpts{
			httpAddr:      s.httpAddr,
			swaggerPath:   os.Getenv("swaggerPath"),
			topic:         s.topic,
			consumerGroup: s.consumerGroup,
		},
		deps:     deps,
		consumer: consumer,
		cache:    rc,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *bundleAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *bundleAPIApp) Run() error {
	return runBundleAPI(a.ctx, a.opts, a.deps, a.consumer)
}
