package main

import (
	"log/slog"
	"time"

	"github.com/BearBump/BundleBox/config"
	"github.com/BearBump/BundleBox/internal/broker/kafka"
	"github.com/BearBump/BundleBox/internal/cache/rediscache"
	"github.com/BearBump/BundleBox/internal/integrations/push"
	"github.com/BearBump/BundleBox/internal/integrations/push/fake"
	"github.com/BearBump/BundleBox/internal/integrations/push/webhook"
	"github.com/BearBump/BundleBox/internal/services/relay"
	"github.com/BearBump/BundleBox/internal/storage/pgstore"
)

type relayFactories struct {
	newStorage     func(cfg *config.Config) (repo relay.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) relay.Producer
	newRateLimiter func(cfg *config.Config) relay.RateLimiter
	newPusher      func(cfg *config.Config) push.Client
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newStorage: func(cfg *config.Config) (relay.Repository, func(), error) {
			st, err := pgstore.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) relay.Producer {
			return kafka.NewProducer(cfg.Kafka.Addrs())
		},
		newRateLimiter: func(cfg *config.Config) relay.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Address(), "bundlebox")
		},
		newPusher: func(cfg *config.Config) push.Client {
			// без webhook уведомления остаются в памяти процесса
			if cfg.BundleBox.PushWebhookURL != "" {
				return webhook.New(cfg.BundleBox.PushWebhookURL, cfg.BundleBox.PushWebhookToken)
			}
			return fake.New()
		},
	}
}

type relaySettings struct {
	topic        string
	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration
	pushPerMin   int64
	backoff      relay.BackoffConfig
}

func settingsFromConfig(cfg *config.Config) relaySettings {
	s := relaySettings{
		topic:        cfg.Kafka.OrderChangedTopicName,
		pollInterval: time.Duration(cfg.BundleBox.RelayPollIntervalMillis) * time.Millisecond,
		batchSize:    cfg.BundleBox.RelayBatchSize,
		concurrency:  cfg.BundleBox.RelayConcurrency,
		lease:        time.Duration(cfg.BundleBox.RelayLeaseSeconds) * time.Second,
		pushPerMin:   int64(cfg.BundleBox.PushRateLimitPerMinute),
		backoff: relay.BackoffConfig{
			Step1: time.Duration(cfg.BundleBox.RelayBackoff1Seconds) * time.Second,
			Step2: time.Duration(cfg.BundleBox.RelayBackoff2Seconds) * time.Second,
			Step3: time.Duration(cfg.BundleBox.RelayBackoff3Seconds) * time.Second,
			Step4: time.Duration(cfg.BundleBox.RelayBackoff4Seconds) * time.Second,
		},
	}
	if s.topic == "" {
		s.topic = "order.changed"
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.concurrency <= 0 {
		s.concurrency = 8
	}
	if s.lease <= 0 {
		s.lease = 30 * time.Second
	}
	if s.pushPerMin <= 0 {
		s.pushPerMin = 60
	}
	return s
}

// buildRelay собирает relay из фабрик. closeFn закрывает producer, rate limiter и хранилище.
func buildRelay(cfg *config.Config, f relayFactories) (*relay.Relay, func(), error) {
	s := settingsFromConfig(cfg)

	repo, closeStorage, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	producer := f.newProducer(cfg)
	limiter := f.newRateLimiter(cfg)
	closeFn := func() {
		closeQuietly("kafka producer", producer)
		closeQuietly("redis rate limiter", limiter)
		if closeStorage != nil {
			closeStorage()
		}
	}

	r := relay.New(repo, producer, f.newPusher(cfg), limiter, s.topic).
		WithSettings(s.pollInterval, s.batchSize, s.concurrency, s.lease, s.pushPerMin).
		WithBackoff(s.backoff)
	return r, closeFn, nil
}

func closeQuietly(name string, v any) {
	c, ok := v.(interface{ Close() error })
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("close "+name, "error", err.Error())
	}
}
