// Package config loads FraudShield configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

const envPrefix = "FRAUDSHIELD_"

// Load reads an optional .env file, picks the tier profile and applies
// FRAUDSHIELD_* overrides on top of it.
func Load() (*domain.Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if strings.EqualFold(getEnv("TIER", ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) error {
	var errs []error

	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port, &errs)

	cfg.Upstream.BaseURL = getEnv("UPSTREAM_URL", cfg.Upstream.BaseURL)
	cfg.Upstream.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout, &errs)
	cfg.Upstream.Token = getEnv("UPSTREAM_TOKEN", cfg.Upstream.Token)

	for i := range cfg.Views {
		v := &cfg.Views[i]
		name := strings.ToUpper(v.Name)
		v.Interval = getEnvDuration(name+"_INTERVAL", v.Interval, &errs)
		v.Limit = getEnvInt(name+"_LIMIT", v.Limit, &errs)
	}

	cfg.Risk.ImpactRulesPath = getEnv("IMPACT_RULES", cfg.Risk.ImpactRulesPath)

	cfg.Repository.Driver = getEnv("DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("POSTGRES_PORT", cfg.Repository.PostgresPort, &errs)
	cfg.Repository.PostgresUser = getEnv("POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = getEnv("CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.EventBus.Type = getEnv("BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	if getEnvBool("DEBUG", false, &errs) {
		cfg.Logging.Level = "debug"
	}

	cfg.Tracing.Enabled = getEnvBool("TRACING", cfg.Tracing.Enabled, &errs)
	cfg.Worker.Enabled = getEnvBool("WORKER", cfg.Worker.Enabled, &errs)

	return errors.Join(errs...)
}

// Validate rejects configurations that cannot run.
func Validate(cfg *domain.Config) error {
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("%sUPSTREAM_URL is required", envPrefix)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if len(cfg.Views) == 0 {
		return fmt.Errorf("at least one view is required")
	}
	for _, v := range cfg.Views {
		if v.Interval <= 0 {
			return fmt.Errorf("view %s: interval must be positive", v.Name)
		}
		if v.Limit <= 0 {
			return fmt.Errorf("view %s: limit must be positive", v.Name)
		}
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return i
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("2500ms") or plain milliseconds.
func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return d
}
