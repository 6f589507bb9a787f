// Package config loads runtime settings from an optional yaml file with env
// overrides for deployment knobs.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IngestConfig controls payload acceptance.
type IngestConfig struct {
	// Policy is "strict" or "lenient". Strict routes rows with decode
	// warnings to the dead-letter store.
	Policy  string            `yaml:"policy"`
	Tenants map[string]string `yaml:"tenants"`
}

// PolicyForTenant returns the effective policy of one tenant.
func (c IngestConfig) PolicyForTenant(tenantID string) string {
	if c.Tenants != nil {
		if override, ok := c.Tenants[tenantID]; ok && override != "" {
			return override
		}
	}
	return c.Policy
}

// ScanConfig controls the background scan scheduler.
type ScanConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Tenants  []string      `yaml:"tenants"`
}

// AMQPConfig controls the queue consumer.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	Prefetch   int    `yaml:"prefetch"`
	TenantID   string `yaml:"tenant_id"`
}

// Config is the full runtime configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"jwt_secret"`
	RedisAddr   string `yaml:"redis_addr"`

	Ingest IngestConfig `yaml:"ingest"`
	Scan   ScanConfig   `yaml:"scan"`
	AMQP   AMQPConfig   `yaml:"amqp"`
}

// Load builds the configuration: defaults, then the yaml file named by
// SENSORFLEET_CONFIG if set, then env overrides on top.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		Ingest: IngestConfig{
			Policy: "strict",
		},
		Scan: ScanConfig{
			Interval: time.Minute,
			Timeout:  time.Minute,
		},
		AMQP: AMQPConfig{
			Queue:    "sensorfleet.readings",
			Prefetch: 16,
		},
	}

	if path := os.Getenv("SENSORFLEET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.Ingest.Policy = getenvDefault("INGEST_POLICY", cfg.Ingest.Policy)
	cfg.Scan.Enabled = getenvBoolDefault("SCAN_ENABLED", cfg.Scan.Enabled)
	cfg.Scan.Interval = getenvDuration("SCAN_INTERVAL", cfg.Scan.Interval)
	cfg.Scan.Timeout = getenvDuration("SCAN_TIMEOUT", cfg.Scan.Timeout)
	if tenants := splitCSV(os.Getenv("SCAN_TENANTS")); len(tenants) > 0 {
		cfg.Scan.Tenants = tenants
	}
	cfg.AMQP.URL = getenvDefault("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Queue = getenvDefault("AMQP_QUEUE", cfg.AMQP.Queue)
	cfg.AMQP.Exchange = getenvDefault("AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.AMQP.RoutingKey = getenvDefault("AMQP_ROUTING_KEY", cfg.AMQP.RoutingKey)
	cfg.AMQP.Prefetch = getenvIntDefault("AMQP_PREFETCH", cfg.AMQP.Prefetch)
	cfg.AMQP.TenantID = getenvDefault("AMQP_TENANT_ID", cfg.AMQP.TenantID)

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: AUTH_JWT_SECRET is required")
	}
	if cfg.Scan.Enabled && len(cfg.Scan.Tenants) == 0 {
		return cfg, errors.New("config: scan enabled without tenants")
	}
	if cfg.AMQP.URL != "" && cfg.AMQP.TenantID == "" {
		return cfg, errors.New("config: AMQP consumer requires a tenant id")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
