package main

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/BundleBox/config"
	"github.com/BearBump/BundleBox/internal/integrations/push"
	"github.com/BearBump/BundleBox/internal/integrations/push/fake"
	"github.com/BearBump/BundleBox/internal/integrations/push/webhook"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/services/relay"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) ClaimPendingEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OrderEvent, error) {
	return []*models.OrderEvent{}, nil
}

func (r *fakeRepo) MarkEventPublished(ctx context.Context, id uint64, at time.Time) error { return nil }

func (r *fakeRepo) RescheduleEvent(ctx context.Context, id uint64, next time.Time, lastErr string) error {
	return nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

type closeLog struct {
	names []string
}

type closingProducer struct {
	noopProducer
	log *closeLog
}

func (p closingProducer) Close() error {
	p.log.names = append(p.log.names, "producer")
	return nil
}

type closingLimiter struct {
	log *closeLog
}

func (l closingLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return true, 1, nil
}

func (l closingLimiter) Close() error {
	l.log.names = append(l.log.names, "limiter")
	return errors.New("already closed")
}

func TestDefaultRelayFactories_SelectPusher(t *testing.T) {
	f := defaultRelayFactories()

	p := f.newPusher(&config.Config{BundleBox: config.BundleBoxConfig{PushWebhookURL: "http://localhost:9000/push"}})
	_, ok := p.(*webhook.Client)
	require.True(t, ok)

	p = f.newPusher(&config.Config{})
	_, ok = p.(*fake.Client)
	require.True(t, ok)
}

func TestDefaultRelayFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultRelayFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestSettingsFromConfig_Defaults(t *testing.T) {
	s := settingsFromConfig(&config.Config{})
	require.Equal(t, "order.changed", s.topic)
	require.Equal(t, time.Second, s.pollInterval)
	require.Equal(t, 100, s.batchSize)
	require.Equal(t, 8, s.concurrency)
	require.Equal(t, 30*time.Second, s.lease)
	require.Equal(t, int64(60), s.pushPerMin)

	s = settingsFromConfig(&config.Config{
		Kafka:     config.KafkaConfig{OrderChangedTopicName: "t"},
		BundleBox: config.BundleBoxConfig{RelayPollIntervalMillis: 250, RelayBatchSize: 5, RelayBackoff1Seconds: 2},
	})
	require.Equal(t, "t", s.topic)
	require.Equal(t, 250*time.Millisecond, s.pollInterval)
	require.Equal(t, 5, s.batchSize)
	require.Equal(t, 2*time.Second, s.backoff.Step1)
}

func testFactories(closed *bool) relayFactories {
	return relayFactories{
		newStorage: func(cfg *config.Config) (relay.Repository, func(), error) {
			return &fakeRepo{}, func() { *closed = true }, nil
		},
		newProducer:    func(cfg *config.Config) relay.Producer { return noopProducer{} },
		newRateLimiter: func(cfg *config.Config) relay.RateLimiter { return nil },
		newPusher:      func(cfg *config.Config) push.Client { return fake.New() },
	}
}

func TestBuildRelay_RunStopsOnCancel(t *testing.T) {
	closed := false
	r, closeFn, err := buildRelay(&config.Config{}, testFactories(&closed))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Run(ctx), context.Canceled)

	closeFn()
	require.True(t, closed)
}

func TestBuildRelay_CloseReleasesEveryClient(t *testing.T) {
	log := &closeLog{}
	f := relayFactories{
		newStorage: func(cfg *config.Config) (relay.Repository, func(), error) {
			return &fakeRepo{}, func() { log.names = append(log.names, "storage") }, nil
		},
		newProducer:    func(cfg *config.Config) relay.Producer { return closingProducer{log: log} },
		newRateLimiter: func(cfg *config.Config) relay.RateLimiter { return closingLimiter{log: log} },
		newPusher:      func(cfg *config.Config) push.Client { return fake.New() },
	}

	_, closeFn, err := buildRelay(&config.Config{}, f)
	require.NoError(t, err)
	require.Empty(t, log.names)

	closeFn()
	require.Equal(t, []string{"producer", "limiter", "storage"}, log.names)
}

func TestBuildRelay_StorageError(t *testing.T) {
	closed := false
	f := testFactories(&closed)
	f.newStorage = func(cfg *config.Config) (relay.Repository, func(), error) {
		return nil, nil, errors.New("postgres down")
	}
	_, _, err := buildRelay(&config.Config{}, f)
	require.ErrorContains(t, err, "postgres down")
}
