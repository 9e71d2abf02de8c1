package uniswap

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

// CallerConfig tunes the limiter and breaker every node call goes through
type CallerConfig struct {
	RequestsPerSecond float64
	Burst             int
	BreakerName       string
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// DefaultCallerConfig allows 20 calls/s and opens after 5 consecutive failures
func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		RequestsPerSecond: 20,
		Burst:             5,
		BreakerName:       "rpc",
		BreakerFailures:   5,
		BreakerTimeout:    30 * time.Second,
	}
}

// Caller rate-limits node calls and trips a circuit breaker on repeated failure
type Caller struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.RPCMetrics
	logger  *zap.Logger
}

// NewCaller creates a caller. m and logger may be nil.
func NewCaller(cfg CallerConfig, m *metrics.RPCMetrics, logger *zap.Logger) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	c := &Caller{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		metrics: m,
		logger:  logger,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if c.metrics != nil {
				c.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// BreakerState returns the breaker's current state
func (c *Caller) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// do runs fn under the limiter and breaker and classifies failures as network errors
func (c *Caller) do(ctx context.Context, method string, fn func() (any, error)) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, dex.NewAdapterError(dex.KindNetwork, method, err)
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.Calls.WithLabelValues(method).Inc()
	}
	out, err := c.breaker.Execute(fn)
	if c.metrics != nil {
		c.metrics.CallLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues(method).Inc()
		}
		c.logger.Debug("Node call failed", zap.String("method", method), zap.Error(err))
		return nil, dex.NewAdapterError(dex.KindNetwork, method, err)
	}
	return out, nil
}

// call invokes a view method on contract and returns its unpacked outputs
func (c *Caller) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.do(ctx, method, func() (any, error) {
		var out []interface{}
		if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]interface{}), nil
}
