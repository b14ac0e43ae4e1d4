package domain

import (
	"time"
)

// Config holds the complete FraudShield configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Upstream scorer
	Upstream UpstreamConfig `json:"upstream"`

	// Polled feed views, one synchronizer each
	Views []ViewConfig `json:"views"`

	// Risk assembly settings
	Risk RiskConfig `json:"risk"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`

	// Async scoring worker
	Worker WorkerConfig `json:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// UpstreamConfig points at the fraud scoring backend.
type UpstreamConfig struct {
	BaseURL string        `json:"baseUrl"`
	Timeout time.Duration `json:"timeout"`
	Token   string        `json:"-"` // service token used when no session is selected
}

// ViewConfig configures one polled consumer of the feed.
type ViewConfig struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Limit    int           `json:"limit"`
}

// Well-known view names.
const (
	ViewLive      = "live"
	ViewDashboard = "dashboard"
)

// RiskConfig holds assessment settings.
type RiskConfig struct {
	// ImpactRulesPath is an optional JSON file of CEL impact rules.
	// When empty the keyword classifier is used.
	ImpactRulesPath string `json:"impactRulesPath"`
}

// WorkerConfig holds async scoring worker settings.
type WorkerConfig struct {
	Enabled bool `json:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Views: []ViewConfig{
			{Name: ViewLive, Interval: 2500 * time.Millisecond, Limit: 10},
			{Name: ViewDashboard, Interval: 5 * time.Second, Limit: 100},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudshield.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudshield",
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudshield",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// View returns the named view configuration.
func (c *Config) View(name string) (ViewConfig, bool) {
	for _, v := range c.Views {
		if v.Name == name {
			return v, true
		}
	}
	return ViewConfig{}, false
}
