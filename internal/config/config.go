// Package config provides configuration management for the strike engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eddiefleurent/strike_engine/internal/engine"
	"github.com/eddiefleurent/strike_engine/internal/logging"
	"github.com/eddiefleurent/strike_engine/internal/marketdata"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/probability"
	"github.com/eddiefleurent/strike_engine/internal/ranking"
	"github.com/eddiefleurent/strike_engine/internal/scanner"
	"github.com/eddiefleurent/strike_engine/internal/storage"
	"github.com/eddiefleurent/strike_engine/internal/strategy"
	"github.com/eddiefleurent/strike_engine/internal/strikes"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

// Market data sources.
const (
	SourceSynthetic = "synthetic"
	SourceFile      = "file"
)

// Config is the top-level configuration structure.
type Config struct {
	Environment EnvironmentConfig  `yaml:"environment"`
	Logging     logging.Config     `yaml:"logging"`
	Scanner     ScannerConfig      `yaml:"scanner"`
	MarketData  MarketDataConfig   `yaml:"market_data"`
	Selector    strikes.Config     `yaml:"selector"`
	Surface     volatility.Config  `yaml:"surface"`
	Engine      engine.Config      `yaml:"engine"`
	Strategies  StrategiesConfig   `yaml:"strategies"`
	Probability probability.Config `yaml:"probability"`
	Ranking     ranking.Config     `yaml:"ranking"`
	Storage     StorageConfig      `yaml:"storage"`
}

// EnvironmentConfig defines environment settings.
type EnvironmentConfig struct {
	Mode string `yaml:"mode"` // "development" or "production"
}

// ScannerConfig holds the default symbol universe and the worker pool settings.
type ScannerConfig struct {
	Symbols        []string `yaml:"symbols"`
	scanner.Config `yaml:",inline"`
}

// MarketDataConfig selects and wraps the snapshot provider.
type MarketDataConfig struct {
	Source         string                     `yaml:"source"`
	SnapshotDir    string                     `yaml:"snapshot_dir"`
	Synthetic      marketdata.SyntheticConfig `yaml:"synthetic"`
	Retry          marketdata.RetryConfig     `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig       `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig enables the provider breaker.
type CircuitBreakerConfig struct {
	Enabled                           bool `yaml:"enabled"`
	marketdata.CircuitBreakerSettings `yaml:",inline"`
}

// StrategiesConfig holds builder settings and template adjustments.
type StrategiesConfig struct {
	strategy.Config `yaml:",inline"`
	// Disabled strategies are removed from every direction's policy.
	Disabled []string `yaml:"disabled"`
	// Overrides maps strategy name to leg name to replacement target or window.
	Overrides map[string]map[string]strategy.LegOverride `yaml:"overrides"`
}

// StorageConfig defines storage settings.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json, sqlite or memory
	Path    string `yaml:"path"`
}

// Default returns a configuration populated with every component's defaults.
func Default() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "development"},
		Logging:     logging.DefaultConfig(),
		Scanner:     ScannerConfig{Config: scanner.DefaultConfig()},
		MarketData: MarketDataConfig{
			Source:         SourceSynthetic,
			Synthetic:      marketdata.DefaultSyntheticConfig(),
			Retry:          marketdata.DefaultRetryConfig(),
			CircuitBreaker: CircuitBreakerConfig{Enabled: true, CircuitBreakerSettings: marketdata.DefaultCircuitBreakerSettings()},
		},
		Selector:    strikes.DefaultConfig(),
		Surface:     volatility.DefaultConfig(),
		Engine:      engine.DefaultConfig(),
		Strategies:  StrategiesConfig{Config: strategy.DefaultConfig()},
		Probability: probability.DefaultConfig(),
		Ranking:     ranking.DefaultConfig(),
		Storage:     StorageConfig{Backend: storage.BackendJSON, Path: "data/strike_engine.json"},
	}
}

// Load reads configuration from a YAML file. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate normalises unset values and checks the configuration.
func (c *Config) Validate() error {
	c.normalize()

	switch c.Environment.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("environment.mode must be 'development' or 'production'")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json'")
	}

	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateMarketData(); err != nil {
		return err
	}
	if err := c.validateSelector(); err != nil {
		return err
	}

	if c.Surface.IVFloor <= 0 {
		return fmt.Errorf("surface.iv_floor must be positive")
	}
	if c.Surface.DefaultATMIV < c.Surface.IVFloor {
		return fmt.Errorf("surface.default_atm_iv must be at least surface.iv_floor")
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if c.Probability.Min <= 0 || c.Probability.Max >= 1 || c.Probability.Min >= c.Probability.Max {
		return fmt.Errorf("probability.min and probability.max must satisfy 0 < min < max < 1")
	}

	if c.Ranking.MinPoP < 0 || c.Ranking.MinPoP > 1 {
		return fmt.Errorf("ranking.min_pop must be between 0 and 1")
	}
	if c.Ranking.TopN < 0 {
		return fmt.Errorf("ranking.top_n must be non-negative")
	}

	switch c.Storage.Backend {
	case storage.BackendJSON, storage.BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of json, sqlite, memory")
	}

	return nil
}

func (c *Config) normalize() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "development"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.MarketData.Source == "" {
		c.MarketData.Source = SourceSynthetic
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendJSON
	}
	for i, s := range c.Scanner.Symbols {
		c.Scanner.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func (c *Config) validateScanner() error {
	if c.Scanner.Workers <= 0 {
		return fmt.Errorf("scanner.workers must be positive")
	}
	if c.Scanner.SymbolTimeout <= 0 {
		return fmt.Errorf("scanner.symbol_timeout must be positive")
	}
	if c.Scanner.HistoryDays < 0 {
		return fmt.Errorf("scanner.history_days must be non-negative")
	}
	for _, s := range c.Scanner.Symbols {
		if s == "" {
			return fmt.Errorf("scanner.symbols must not contain empty entries")
		}
	}
	return nil
}

func (c *Config) validateMarketData() error {
	md := c.MarketData
	switch md.Source {
	case SourceSynthetic:
	case SourceFile:
		if md.SnapshotDir == "" {
			return fmt.Errorf("market_data.snapshot_dir is required when source is 'file'")
		}
	default:
		return fmt.Errorf("market_data.source must be 'synthetic' or 'file'")
	}
	if md.Retry.MaxRetries < 0 {
		return fmt.Errorf("market_data.retry.max_retries must be non-negative")
	}
	if md.Retry.MaxRetries > 0 && (md.Retry.InitialBackoff <= 0 || md.Retry.MaxBackoff < md.Retry.InitialBackoff) {
		return fmt.Errorf("market_data.retry backoffs must satisfy 0 < initial_backoff <= max_backoff")
	}
	if md.CircuitBreaker.Enabled {
		cb := md.CircuitBreaker
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("market_data.circuit_breaker.failure_ratio must be in (0, 1]")
		}
		if cb.Timeout <= 0 {
			return fmt.Errorf("market_data.circuit_breaker.timeout must be positive")
		}
	}
	return nil
}

func (c *Config) validateSelector() error {
	w := c.Selector.Weights
	if w.Distance < 0 || w.OpenInterest < 0 || w.Spread < 0 || w.Volume < 0 {
		return fmt.Errorf("selector.weights must be non-negative")
	}
	if w.Distance+w.OpenInterest+w.Spread+w.Volume == 0 {
		return fmt.Errorf("selector.weights must not all be zero")
	}
	if c.Selector.RelaxedWindowFactor < 1 {
		return fmt.Errorf("selector.relaxed_window_factor must be at least 1")
	}
	if c.Selector.RelaxedLiquidityFactor <= 0 || c.Selector.RelaxedLiquidityFactor > 1 {
		return fmt.Errorf("selector.relaxed_liquidity_factor must be in (0, 1]")
	}
	dc := c.Selector.DefaultConstraint
	if dc.MinMoneyness < 0 || dc.MaxMoneyness < 0 {
		return fmt.Errorf("selector.default_constraint moneyness bounds must be non-negative")
	}
	if dc.MinMoneyness > 0 && dc.MaxMoneyness > 0 && dc.MaxMoneyness <= dc.MinMoneyness {
		return fmt.Errorf("selector.default_constraint.max_moneyness must exceed min_moneyness")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be between 0 and 1")
	}
	if c.Engine.LotSize < 0 || c.Engine.Quantity < 0 {
		return fmt.Errorf("engine.lot_size and engine.quantity must be non-negative")
	}
	reg := strategy.DefaultRegistry()
	for dir, names := range c.Engine.Policy {
		if !dir.Valid() {
			return fmt.Errorf("engine.policy has unknown direction %q", dir)
		}
		for _, n := range names {
			if _, err := reg.Get(n); err != nil {
				return fmt.Errorf("engine.policy.%s: %w", dir, err)
			}
		}
	}
	if _, ok := c.Engine.Policy[models.Neutral]; !ok {
		return fmt.Errorf("engine.policy must define the neutral direction")
	}
	for _, n := range c.Strategies.Disabled {
		if _, err := reg.Get(n); err != nil {
			return fmt.Errorf("strategies.disabled: %w", err)
		}
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("strategies.overrides: %w", err)
	}
	return nil
}

// Registry returns the built-in strategy table with the configured overrides applied.
func (c *Config) Registry() (*strategy.Registry, error) {
	reg := strategy.DefaultRegistry()
	for name, legs := range c.Strategies.Overrides {
		if err := reg.Override(name, legs); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// EngineConfig returns the engine settings with disabled strategies removed from the policy.
func (c *Config) EngineConfig() engine.Config {
	out := c.Engine
	disabled := make(map[string]bool, len(c.Strategies.Disabled))
	for _, n := range c.Strategies.Disabled {
		disabled[n] = true
	}
	out.Policy = make(map[models.MarketDirection][]string, len(c.Engine.Policy))
	for dir, names := range c.Engine.Policy {
		kept := make([]string, 0, len(names))
		for _, n := range names {
			if !disabled[n] {
				kept = append(kept, n)
			}
		}
		out.Policy[dir] = kept
	}
	return out
}

// IsProduction reports whether the engine runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment.Mode == "production"
}
