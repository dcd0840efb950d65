package broker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/equitron/equity-agent/pkg/types"
)

// GuardConfig controls the protective wrapper around a broker
type GuardConfig struct {
	// MaxOrdersPerSecond throttles submissions; 0 disables the limiter
	MaxOrdersPerSecond float64 `json:"max_orders_per_second" yaml:"max_orders_per_second"`
	Burst              int     `json:"burst" yaml:"burst"`
	// ConsecutiveFailures opens the breaker after this many failed calls
	ConsecutiveFailures uint32         `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         types.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// DefaultGuardConfig returns conservative submission guards
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxOrdersPerSecond:  5,
		Burst:               5,
		ConsecutiveFailures: 3,
		OpenTimeout:         types.Duration(30 * time.Second),
	}
}

// GuardedBroker wraps a Broker with a circuit breaker and a submission
// rate limiter. A flapping brokerage connection trips the breaker instead
// of queueing failing orders; the daily risk limits remain the engine's
// responsibility.
type GuardedBroker struct {
	inner   Broker
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedBroker wraps the broker with the given guards
func NewGuardedBroker(inner Broker, config GuardConfig) *GuardedBroker {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 3
	}
	if config.OpenTimeout == 0 {
		config.OpenTimeout = types.Duration(30 * time.Second)
	}

	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: config.OpenTimeout.Std(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
	}

	var limiter *rate.Limiter
	if config.MaxOrdersPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.MaxOrdersPerSecond), burst)
	}

	return &GuardedBroker{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
	}
}

// Name identifies the wrapped broker
func (g *GuardedBroker) Name() string {
	return g.inner.Name()
}

// State returns the current breaker state
func (g *GuardedBroker) State() gobreaker.State {
	return g.breaker.State()
}

// SubmitOrder forwards the order through the rate limiter and breaker
func (g *GuardedBroker) SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.SubmitOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.OrderResult), nil
}
