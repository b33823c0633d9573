package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	BundleBox BundleBoxConfig `yaml:"bundlebox"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString возвращает DSN как есть, иначе собирает его из отдельных полей.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

type KafkaConfig struct {
	Host                  string   `yaml:"host"`
	Port                  int      `yaml:"port"`
	Brokers               []string `yaml:"brokers"`
	OrderChangedTopicName string   `yaml:"order_changed_topic_name"`
}

func (c KafkaConfig) Addrs() []string {
	if len(c.Brokers) > 0 {
		return c.Brokers
	}
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c RedisConfig) Address() string {
	if c.Addr != "" {
		return c.Addr
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type BundleBoxConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	OrderCacheTTLSeconds   int    `yaml:"order_cache_ttl_seconds"`
	PackageCacheTTLSeconds int    `yaml:"package_cache_ttl_seconds"`
	Currency               string `yaml:"currency"`

	JWTSecret         string `yaml:"jwt_secret"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	AdminEmail        string `yaml:"admin_email"`
	AdminPassword     string `yaml:"admin_password"`

	RelayPollIntervalMillis int    `yaml:"relay_poll_interval_millis"`
	RelayBatchSize          int    `yaml:"relay_batch_size"`
	RelayConcurrency        int    `yaml:"relay_concurrency"`
	RelayLeaseSeconds       int    `yaml:"relay_lease_seconds"`
	RelayHTTPAddr           string `yaml:"relay_http_addr"`

	// Паузы перед повторной публикацией события: 5s/30s/2m/10m, если не заданы.
	RelayBackoff1Seconds int `yaml:"relay_backoff_1_seconds"`
	RelayBackoff2Seconds int `yaml:"relay_backoff_2_seconds"`
	RelayBackoff3Seconds int `yaml:"relay_backoff_3_seconds"`
	RelayBackoff4Seconds int `yaml:"relay_backoff_4_seconds"`

	PushWebhookURL         string `yaml:"push_webhook_url"`
	PushWebhookToken       string `yaml:"push_webhook_token"`
	PushRateLimitPerMinute int    `yaml:"push_rate_limit_per_minute"`
}

// envOverrides перекрывают YAML переменными окружения (секреты и адреса в docker).
type envOverrides struct {
	DatabaseDSN  string `env:"BUNDLEBOX_DATABASE_DSN"`
	JWTSecret    string `env:"BUNDLEBOX_JWT_SECRET"`
	HTTPAddr     string `env:"BUNDLEBOX_HTTP_ADDR"`
	RedisAddr    string `env:"BUNDLEBOX_REDIS_ADDR"`
	KafkaBrokers string `env:"BUNDLEBOX_KAFKA_BROKERS"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// Load подхватывает .env (если есть), читает YAML и применяет переопределения из окружения.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse env: %w", err)
	}
	if o.DatabaseDSN != "" {
		c.Database.DSN = o.DatabaseDSN
	}
	if o.JWTSecret != "" {
		c.BundleBox.JWTSecret = o.JWTSecret
	}
	if o.HTTPAddr != "" {
		c.BundleBox.HTTPAddr = o.HTTPAddr
	}
	if o.RedisAddr != "" {
		c.Redis.Addr = o.RedisAddr
	}
	if o.KafkaBrokers != "" {
		var brokers []string
		for _, b := range strings.Split(o.KafkaBrokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Kafka.Brokers = brokers
	}
	return nil
}
