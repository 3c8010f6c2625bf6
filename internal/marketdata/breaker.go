package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        `yaml:"max_requests"`  // Max requests when half-open
	Interval     time.Duration `yaml:"interval"`      // Reset counts interval
	Timeout      time.Duration `yaml:"timeout"`       // Open circuit duration
	MinRequests  uint32        `yaml:"min_requests"`  // Min requests before tripping
	FailureRatio float64       `yaml:"failure_ratio"` // Failure ratio threshold
}

// DefaultCircuitBreakerSettings returns the breaker defaults.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	}
}

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality.
// Unknown symbols and caller cancellations do not count as failures.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProvider(provider Provider, settings CircuitBreakerSettings, logger zerolog.Logger) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSymbolNotFound) || errors.Is(err, context.Canceled)
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Snapshot wraps the underlying provider's Snapshot.
func (c *CircuitBreakerProvider) Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (*models.MarketSnapshot, error) {
		return p.Snapshot(ctx, symbol)
	})
}

// State returns the breaker's current state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}
