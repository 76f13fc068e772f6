package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Billing  BillingConfig
	Provider ProviderConfig
	AI       AIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret string
}

// BillingConfig configures the Autumn entitlement collaborator. An empty
// APIKey means billing is not configured: paid-tier reservations are denied
// without a network call.
type BillingConfig struct {
	BaseURL   string
	APIKey    string
	FeatureID string
	Timeout   time.Duration
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AIConfig holds the metered-pipeline tunables.
type AIConfig struct {
	FreeMessageLimit int
	FlushThreshold   int
	FlushInterval    time.Duration
	RateLimitPerMin  int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: k.Strings("server.cors.origins"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
		},
		Billing: BillingConfig{
			BaseURL:   k.String("billing.base.url"),
			APIKey:    k.String("billing.api.key"),
			FeatureID: k.String("billing.feature.id"),
		},
		Provider: ProviderConfig{
			BaseURL: k.String("provider.base.url"),
			APIKey:  k.String("provider.api.key"),
			Model:   k.String("provider.model"),
		},
		AI: AIConfig{
			FreeMessageLimit: k.Int("ai.free.message.limit"),
			FlushThreshold:   k.Int("ai.flush.threshold"),
			RateLimitPerMin:  k.Int("ai.rate.limit.per.min"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "podium"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "podium"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Billing.BaseURL == "" {
		cfg.Billing.BaseURL = "https://api.useautumn.com/v1"
	}
	if cfg.Billing.FeatureID == "" {
		cfg.Billing.FeatureID = "ai-messages"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "gpt-4o-mini"
	}
	if cfg.AI.FreeMessageLimit == 0 {
		cfg.AI.FreeMessageLimit = 10
	}
	if cfg.AI.FlushThreshold == 0 {
		cfg.AI.FlushThreshold = 100
	}
	if cfg.AI.RateLimitPerMin == 0 {
		cfg.AI.RateLimitPerMin = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	flushIntervalStr := k.String("ai.flush.interval")
	if flushIntervalStr == "" {
		flushIntervalStr = "100ms"
	}
	cfg.AI.FlushInterval, err = time.ParseDuration(flushIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("parsing ai flush interval: %w", err)
	}

	billingTimeoutStr := k.String("billing.timeout")
	if billingTimeoutStr == "" {
		billingTimeoutStr = "10s"
	}
	cfg.Billing.Timeout, err = time.ParseDuration(billingTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing billing timeout: %w", err)
	}

	providerTimeoutStr := k.String("provider.timeout")
	if providerTimeoutStr == "" {
		providerTimeoutStr = "120s"
	}
	cfg.Provider.Timeout, err = time.ParseDuration(providerTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing provider timeout: %w", err)
	}

	return cfg, nil
}
