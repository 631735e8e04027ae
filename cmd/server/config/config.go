package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServicesConfig holds the base address per downstream service and the
// per-call timeout applied by the gateway.
type ServicesConfig struct {
	CatalogURL   string
	PaymentsURL  string
	InventoryURL string
	PurchasesURL string
	CallTimeout  time.Duration
}

// ServerConfig holds the API server address.
type ServerConfig struct {
	Addr string
}

// ObservabilityConfig holds the HTTP address for the metrics endpoint.
type ObservabilityConfig struct {
	Addr string
}

// RedisConfig holds the optional outcome stream settings. An empty URL
// disables Redis publishing.
type RedisConfig struct {
	URL          string
	Stream       string
	StreamMaxLen int64
}

// Enabled reports whether Redis publishing is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig holds the optional Kafka publishing settings. An empty broker
// list disables Kafka publishing.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// Enabled reports whether Kafka publishing is configured.
func (c KafkaConfig) Enabled() bool { return c.Brokers != "" }

// LoadServices reads downstream service addresses from env, defaulting to
// the local stub ports.
func LoadServices() (ServicesConfig, error) {
	cfg := ServicesConfig{
		CatalogURL:   defaultString("CATALOG_URL", "http://localhost:3001"),
		PaymentsURL:  defaultString("PAYMENTS_URL", "http://localhost:3002"),
		InventoryURL: defaultString("INVENTORY_URL", "http://localhost:3003"),
		PurchasesURL: defaultString("PURCHASES_URL", "http://localhost:3004"),
	}
	timeout, err := optionalDuration("GATEWAY_CALL_TIMEOUT")
	if err != nil {
		return cfg, err
	}
	cfg.CallTimeout = timeout
	return cfg, nil
}

// LoadServer reads the API server address from env.
func LoadServer() ServerConfig {
	return ServerConfig{Addr: defaultString("ADDR", ":3000")}
}

// LoadObservability reads the metrics HTTP server address from env.
func LoadObservability() ObservabilityConfig {
	return ObservabilityConfig{Addr: defaultString("OBS_ADDR", ":9100")}
}

// LoadRedis reads the optional Redis outcome stream settings from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		Stream: strings.TrimSpace(os.Getenv("REDIS_STREAM")),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	maxLen, err := optionalInt64("REDIS_STREAM_MAXLEN")
	if err != nil {
		return cfg, err
	}
	cfg.StreamMaxLen = maxLen
	return cfg, nil
}

// LoadKafka reads the optional Kafka publishing settings from env.
func LoadKafka() KafkaConfig {
	return KafkaConfig{
		Brokers: strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		Topic:   strings.TrimSpace(os.Getenv("KAFKA_TOPIC")),
	}
}

func defaultString(name, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func optionalDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func optionalInt64(name string) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
