package purchase

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReliabilityConfig controls the optional retry/breaker wrapper around the
// gateway. The zero value preserves the base behavior: exactly one attempt
// per step and no circuit breaking.
type ReliabilityConfig struct {
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// Enabled reports whether the config asks for anything beyond a single
// attempt per call.
func (c ReliabilityConfig) Enabled() bool {
	return c.RetryMaxAttempts > 1 || c.BreakerMaxFailures > 0
}

// LoadReliabilityFromEnv reads the optional hardening knobs. Unset values
// keep the single-attempt default.
func LoadReliabilityFromEnv() (ReliabilityConfig, error) {
	cfg := ReliabilityConfig{}
	var err error

	if cfg.RetryMaxAttempts, err = envOptionalInt("PURCHASE_RETRY_MAX_ATTEMPTS"); err != nil {
		return cfg, err
	}
	if cfg.RetryBaseDelay, err = envOptionalDuration("PURCHASE_RETRY_BASE_DELAY"); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxDelay, err = envOptionalDuration("PURCHASE_RETRY_MAX_DELAY"); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = envOptionalInt("PURCHASE_BREAKER_MAX_FAILURES"); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = envOptionalDuration("PURCHASE_BREAKER_RESET_TIMEOUT"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// WrapGateway applies the configured reliability controls around base.
// A disabled config returns base unchanged.
func (c ReliabilityConfig) WrapGateway(base Gateway) Gateway {
	if !c.Enabled() {
		return base
	}

	retry := RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}

	var breakers Breakers
	if c.BreakerMaxFailures > 0 {
		newBreaker := func() *CircuitBreaker {
			return NewCircuitBreaker(CircuitBreakerConfig{
				MaxFailures:  c.BreakerMaxFailures,
				ResetTimeout: c.BreakerResetTimeout,
			})
		}
		breakers = Breakers{
			Catalog:   newBreaker(),
			Payments:  newBreaker(),
			Inventory: newBreaker(),
			Purchases: newBreaker(),
		}
	}

	return NewReliableGateway(base, retry, breakers)
}

func envOptionalInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func envOptionalDuration(name string) (time.Duration, error) {
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
