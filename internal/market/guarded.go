package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardedProvider wraps a SnapshotProvider with a circuit breaker, a
// token-bucket rate limit, and a per-call timeout. A fetch that trips
// the breaker or times out surfaces as an error so the engine can skip
// the symbol for the step instead of blocking.
type GuardedProvider struct {
	inner   SnapshotProvider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// GuardConfig holds resilience settings for an upstream data source
type GuardConfig struct {
	RPS             float64       `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRequests     uint32        `yaml:"max_requests"`
	Interval        time.Duration `yaml:"interval"`
	OpenTimeout     time.Duration `yaml:"open_timeout"`
	FailureRatio    float64       `yaml:"failure_ratio"`
	MinRequestCount uint32        `yaml:"min_request_count"`
}

// DefaultGuardConfig returns conservative defaults for free-tier data APIs
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RPS:             2.0,
		Burst:           4,
		Timeout:         10 * time.Second,
		MaxRequests:     2,
		Interval:        60 * time.Second,
		OpenTimeout:     30 * time.Second,
		FailureRatio:    0.6,
		MinRequestCount: 5,
	}
}

// NewGuardedProvider wraps inner with the given resilience settings
func NewGuardedProvider(inner SnapshotProvider, cfg GuardConfig) *GuardedProvider {
	settings := gobreaker.Settings{
		Name:        "market_data",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequestCount {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Market data circuit breaker state change")
		},
	}

	return &GuardedProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		timeout: cfg.Timeout,
	}
}

// DownloadBars fetches histories through the breaker and rate limiter
func (g *GuardedProvider) DownloadBars(ctx context.Context, symbols []string, period, interval string) (map[string]*Series, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.DownloadBars(callCtx, symbols, period, interval)
	})
	if err != nil {
		return nil, fmt.Errorf("download bars: %w", err)
	}

	return result.(map[string]*Series), nil
}

// LatestPrice fetches one quote through the breaker and rate limiter
func (g *GuardedProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		price, err := g.inner.LatestPrice(callCtx, symbol)
		if err != nil {
			return nil, err
		}
		return price, nil
	})
	if err != nil {
		return 0, fmt.Errorf("latest price %s: %w", symbol, err)
	}

	return result.(float64), nil
}

// BreakerState exposes the current circuit breaker state for health checks
func (g *GuardedProvider) BreakerState() gobreaker.State {
	return g.breaker.State()
}
