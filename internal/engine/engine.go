// Package engine runs the per-symbol construction pipeline: validate the
// snapshot, fit the smile, derive expected moves and build every candidate
// strategy the market direction calls for.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/strategy"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

// DataQualityError rejects a snapshot the engine cannot analyze at all.
type DataQualityError struct {
	Symbol string
	Err    error
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s: %v", e.Symbol, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *DataQualityError) Unwrap() error {
	return e.Err
}

// Config controls which strategies are attempted.
type Config struct {
	// MinConfidence below which a directional view is treated as neutral.
	MinConfidence float64                              `yaml:"min_confidence"`
	Policy        map[models.MarketDirection][]string `yaml:"policy"`
	LotSize       int                                  `yaml:"lot_size"`
	Quantity      int                                  `yaml:"quantity"`
}

// DefaultPolicy maps each direction to the strategies attempted for it.
func DefaultPolicy() map[models.MarketDirection][]string {
	return map[models.MarketDirection][]string{
		models.Bullish: {"bull_put_spread", "bull_call_spread", "long_call", "short_put"},
		models.Bearish: {"bear_call_spread", "bear_put_spread", "long_put", "short_call"},
		models.Neutral: {"iron_condor", "iron_butterfly", "short_strangle", "short_straddle", "long_call_butterfly"},
	}
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.5, Policy: DefaultPolicy(), LotSize: 1, Quantity: 1}
}

// Outcome records the result of one strategy attempt.
type Outcome struct {
	Strategy string                 `json:"strategy"`
	Success  bool                   `json:"success"`
	Reason   strategy.FailureReason `json:"reason,omitempty"`
	Detail   string                 `json:"detail,omitempty"`
}

// Analysis is everything produced for one symbol.
type Analysis struct {
	Symbol       string                     `json:"symbol"`
	Spot         float64                    `json:"spot"`
	Direction    models.MarketDirection     `json:"direction"`
	Smile        volatility.SmileParameters `json:"smile"`
	SmileRisk    volatility.SmileRisk       `json:"smile_risk"`
	ExpectedMove expectedmove.ExpectedMove  `json:"expected_move"`
	ATMIV        float64                    `json:"atm_iv"`
	IVRank       float64                    `json:"iv_rank"`
	Strategies   []*models.Strategy         `json:"strategies"`
	Outcomes     []Outcome                  `json:"outcomes"`
	Duration     time.Duration              `json:"duration"`
}

// Engine analyzes market snapshots. It is safe for concurrent use.
type Engine struct {
	fitter  *volatility.Fitter
	calc    *expectedmove.Calculator
	builder *strategy.Builder
	cfg     Config
	logger  zerolog.Logger
}

// New creates an Engine.
func New(fitter *volatility.Fitter, calc *expectedmove.Calculator, builder *strategy.Builder, cfg Config, logger zerolog.Logger) *Engine {
	if len(cfg.Policy) == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	return &Engine{fitter: fitter, calc: calc, builder: builder, cfg: cfg, logger: logger}
}

// Candidates returns the strategy names attempted for a direction at a confidence.
func (e *Engine) Candidates(direction models.MarketDirection, confidence float64) []string {
	return append([]string(nil), e.cfg.Policy[e.effectiveDirection(direction, confidence)]...)
}

func (e *Engine) effectiveDirection(direction models.MarketDirection, confidence float64) models.MarketDirection {
	if !direction.Valid() || confidence < e.cfg.MinConfidence {
		return models.Neutral
	}
	return direction
}

// Analyze builds every candidate strategy for a snapshot. Only a malformed
// snapshot returns an error; individual strategy failures are reported as
// Outcomes.
func (e *Engine) Analyze(ctx context.Context, snap *models.MarketSnapshot) (*Analysis, error) {
	if snap == nil {
		return nil, &DataQualityError{Err: models.ErrEmptyChain}
	}
	start := time.Now()
	chain := &snap.Chain
	if err := chain.Validate(); err != nil {
		return nil, &DataQualityError{Symbol: chain.Symbol, Err: err}
	}

	surface := e.fitter.Fit(chain)
	em := e.calc.FromChain(chain, surface)
	atm := surface.ATMIV(chain.Expiry)
	direction := e.effectiveDirection(snap.Direction, snap.Confidence)

	a := &Analysis{
		Symbol:       chain.Symbol,
		Spot:         chain.Spot,
		Direction:    direction,
		Smile:        surface.Params(chain.Expiry),
		SmileRisk:    surface.SmileRisk(chain.Expiry),
		ExpectedMove: em,
		ATMIV:        atm,
		IVRank:       volatility.IVRank(atm, snap.IVHistory),
	}

	lot := snap.LotSize
	if lot <= 0 {
		lot = e.cfg.LotSize
	}
	in := strategy.Input{
		Chain:        chain,
		Surface:      surface,
		ExpectedMove: &em,
		IVRank:       a.IVRank,
		LotSize:      lot,
		Quantity:     e.cfg.Quantity,
	}

	for _, name := range e.cfg.Policy[direction] {
		s, err := e.builder.Build(ctx, in, name)
		if err != nil {
			o := Outcome{Strategy: name, Reason: strategy.ReasonOf(err), Detail: err.Error()}
			if o.Reason == "" {
				o.Reason = strategy.ReasonInvalidInput
			}
			a.Outcomes = append(a.Outcomes, o)
			e.logger.Info().
				Str("symbol", chain.Symbol).
				Str("strategy", name).
				Str("reason", string(o.Reason)).
				Err(err).
				Msg("strategy skipped")
			continue
		}
		a.Strategies = append(a.Strategies, s)
		a.Outcomes = append(a.Outcomes, Outcome{Strategy: name, Success: true})
	}
	a.Duration = time.Since(start)

	e.logger.Debug().
		Str("symbol", a.Symbol).
		Str("direction", string(direction)).
		Str("smile_quality", string(a.Smile.Quality)).
		Float64("one_sd_move", em.OneSD).
		Int("built", len(a.Strategies)).
		Int("attempted", len(a.Outcomes)).
		Dur("elapsed", a.Duration).
		Msg("analysis complete")
	return a, nil
}

// IsDataQuality reports whether err rejects the snapshot itself.
func IsDataQuality(err error) bool {
	var dq *DataQualityError
	return errors.As(err, &dq)
}
