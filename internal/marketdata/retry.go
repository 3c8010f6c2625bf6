package marketdata

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// RetryConfig controls RetryProvider backoff.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// RetryProvider retries transient Snapshot failures with jittered backoff.
type RetryProvider struct {
	provider Provider
	logger   zerolog.Logger
	config   RetryConfig
}

// NewRetryProvider wraps provider with retries.
func NewRetryProvider(provider Provider, config RetryConfig, logger zerolog.Logger) *RetryProvider {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	return &RetryProvider{provider: provider, logger: logger, config: config}
}

// Snapshot calls the wrapped provider until it succeeds, fails permanently,
// runs out of attempts or ctx ends.
func (r *RetryProvider) Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	var lastErr error
	attempts := 0
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("snapshot %s canceled: %w", symbol, ctx.Err())
		}

		attempts++
		snap, err := r.provider.Snapshot(ctx, symbol)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == r.config.MaxRetries {
			break
		}
		r.logger.Warn().
			Str("symbol", symbol).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("transient market data error, retrying")

		select {
		case <-time.After(backoff):
			backoff = r.nextBackoff(backoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("snapshot %s canceled during backoff: %w", symbol, ctx.Err())
		}
	}

	return nil, fmt.Errorf("snapshot %s failed after %d attempts: %w", symbol, attempts, lastErr)
}

func (r *RetryProvider) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}
	if maxJitter := int64(backoff / 4); maxJitter > 0 {
		backoff += time.Duration(rand.Int64N(maxJitter))
	}
	return backoff
}
