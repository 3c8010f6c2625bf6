package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/config"
	"github.com/eddiefleurent/strike_engine/internal/engine"
	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/marketdata"
	"github.com/eddiefleurent/strike_engine/internal/probability"
	"github.com/eddiefleurent/strike_engine/internal/strategy"
	"github.com/eddiefleurent/strike_engine/internal/strikes"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

// newProvider builds the configured source wrapped in retry and, when
// enabled, a circuit breaker. The breaker sits inside the retry loop so an
// open circuit fails each attempt fast.
func newProvider(cfg *config.Config, logger zerolog.Logger) (marketdata.Provider, error) {
	var p marketdata.Provider
	switch cfg.MarketData.Source {
	case config.SourceFile:
		fp, err := marketdata.NewFileProvider(cfg.MarketData.SnapshotDir)
		if err != nil {
			return nil, err
		}
		p = fp
	case config.SourceSynthetic, "":
		p = marketdata.NewSyntheticProvider(cfg.MarketData.Synthetic)
	default:
		return nil, fmt.Errorf("unknown market data source %q", cfg.MarketData.Source)
	}

	if cfg.MarketData.CircuitBreaker.Enabled {
		p = marketdata.NewCircuitBreakerProvider(p, cfg.MarketData.CircuitBreaker.CircuitBreakerSettings, logger)
	}
	if cfg.MarketData.Retry.MaxRetries > 0 {
		p = marketdata.NewRetryProvider(p, cfg.MarketData.Retry, logger)
	}
	return p, nil
}

func newEngine(cfg *config.Config, logger zerolog.Logger) (*engine.Engine, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	builder := strategy.NewBuilder(
		registry,
		strikes.NewSelector(cfg.Selector, logger),
		probability.NewEngine(cfg.Probability),
		cfg.Strategies.Config,
		logger,
	)
	return engine.New(
		volatility.NewFitter(cfg.Surface, logger),
		expectedmove.NewCalculator(logger),
		builder,
		cfg.EngineConfig(),
		logger,
	), nil
}
