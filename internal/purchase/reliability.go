package purchase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryPolicy controls retry behavior for forward saga calls. Only
// Unavailable results are retried: an explicit business rejection is final,
// and retrying it would just repeat the same answer.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
}

// Do executes fn, retrying unavailable results up to MaxAttempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		delay := p.BaseDelay
		if delay > 0 {
			delay = delay << (attempt - 1)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		delay = jitter(delay)
		if delay > 0 {
			if serr := sleep(ctx, delay); serr != nil {
				return serr
			}
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker stops calls to a downstream service after repeated
// failures, allowing a single probe after ResetTimeout.
type CircuitBreaker struct {
	mu         sync.Mutex
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time

	state          circuitState
	failures       int
	openedAt       time.Time
	halfOpenFlight bool
}

// NewCircuitBreaker constructs a circuit breaker with sane defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	maxFails := cfg.MaxFailures
	if maxFails < 1 {
		maxFails = 1
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 2 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		maxFails:   maxFails,
		resetAfter: resetAfter,
		now:        now,
		state:      circuitClosed,
	}
}

// Execute runs the given function while enforcing breaker state. A nil
// breaker is a passthrough.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if c == nil {
		return fn()
	}

	now := c.now()

	c.mu.Lock()
	switch c.state {
	case circuitOpen:
		if now.Sub(c.openedAt) < c.resetAfter {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
		c.state = circuitHalfOpen
	case circuitHalfOpen:
		if c.halfOpenFlight {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	if c.state == circuitHalfOpen {
		c.halfOpenFlight = true
	}
	c.mu.Unlock()

	err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == circuitHalfOpen {
		c.halfOpenFlight = false
	}

	if err == nil {
		c.state = circuitClosed
		c.failures = 0
		return nil
	}

	if c.state == circuitHalfOpen {
		c.state = circuitOpen
		c.openedAt = now
		c.failures = 0
		return err
	}

	c.failures++
	if c.failures >= c.maxFails {
		c.state = circuitOpen
		c.openedAt = now
	}
	return err
}

// Breakers holds one optional breaker per downstream service.
type Breakers struct {
	Catalog   *CircuitBreaker
	Payments  *CircuitBreaker
	Inventory *CircuitBreaker
	Purchases *CircuitBreaker
}

// ReliableGateway wraps a Gateway with retry and circuit breaking on the
// forward operations. Compensations stay single-attempt: the sweep must not
// block the caller, failed compensations are reconciled out-of-band.
type ReliableGateway struct {
	base     Gateway
	retry    RetryPolicy
	breakers Breakers
}

// NewReliableGateway constructs a reliability-wrapped gateway.
func NewReliableGateway(base Gateway, retry RetryPolicy, breakers Breakers) *ReliableGateway {
	return &ReliableGateway{
		base:     base,
		retry:    retry,
		breakers: breakers,
	}
}

func (g *ReliableGateway) FetchProduct(ctx context.Context, productID int) (Product, error) {
	var product Product
	err := g.do(ctx, g.breakers.Catalog, func() error {
		var err error
		product, err = g.base.FetchProduct(ctx, productID)
		return err
	})
	return product, err
}

func (g *ReliableGateway) ChargePayment(ctx context.Context, amount float64, user string) (string, error) {
	var ref string
	err := g.do(ctx, g.breakers.Payments, func() error {
		var err error
		ref, err = g.base.ChargePayment(ctx, amount, user)
		return err
	})
	return ref, err
}

func (g *ReliableGateway) AdjustInventory(ctx context.Context, productID, quantity int) error {
	return g.do(ctx, g.breakers.Inventory, func() error {
		return g.base.AdjustInventory(ctx, productID, quantity)
	})
}

func (g *ReliableGateway) RegisterPurchase(ctx context.Context, user string, productID, quantity int, amount float64) (string, error) {
	var ref string
	err := g.do(ctx, g.breakers.Purchases, func() error {
		var err error
		ref, err = g.base.RegisterPurchase(ctx, user, productID, quantity, amount)
		return err
	})
	return ref, err
}

func (g *ReliableGateway) Compensate(ctx context.Context, kind StepKind, data StepData) error {
	return g.base.Compensate(ctx, kind, data)
}

func (g *ReliableGateway) do(ctx context.Context, breaker *CircuitBreaker, fn func() error) error {
	return g.retry.Do(ctx, func() error {
		return breaker.Execute(fn)
	})
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
