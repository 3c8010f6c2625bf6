package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/pricing"
	"github.com/eddiefleurent/strike_engine/internal/probability"
	"github.com/eddiefleurent/strike_engine/internal/strikes"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

// ProbabilityEstimator scores a constructed strategy. probability.Engine implements it.
type ProbabilityEstimator interface {
	Estimate(s *models.Strategy, m probability.Market) float64
}

// Config holds builder settings.
type Config struct {
	// Liquidity thresholds applied to every leg's strict tier.
	MinOpenInterest int64   `yaml:"min_open_interest"`
	MinVolume       int64   `yaml:"min_volume"`
	DefaultLotSize  int     `yaml:"default_lot_size"`
	FallbackIV      float64 `yaml:"fallback_iv"`
	RiskFreeRate    float64 `yaml:"risk_free_rate"`
}

// DefaultConfig returns the builder defaults.
func DefaultConfig() Config {
	return Config{
		MinOpenInterest: 100,
		MinVolume:       1,
		DefaultLotSize:  1,
		FallbackIV:      0.20,
	}
}

// Input is the per-symbol market state shared read-only by every build.
type Input struct {
	Chain        *models.OptionChain
	Surface      *volatility.Surface
	ExpectedMove *expectedmove.ExpectedMove
	IVRank       float64
	LotSize      int
	Quantity     int
}

// Builder constructs strategies from registered templates.
type Builder struct {
	registry *Registry
	selector *strikes.Selector
	prob     ProbabilityEstimator
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(registry *Registry, selector *strikes.Selector, prob ProbabilityEstimator, cfg Config, logger zerolog.Logger) *Builder {
	if cfg.DefaultLotSize <= 0 {
		cfg.DefaultLotSize = 1
	}
	if cfg.FallbackIV <= 0 {
		cfg.FallbackIV = DefaultConfig().FallbackIV
	}
	return &Builder{
		registry: registry,
		selector: selector,
		prob:     prob,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry returns the builder's template registry.
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build constructs the named strategy. It returns either a Strategy whose
// every invariant holds or a *BuildError, never both.
func (b *Builder) Build(ctx context.Context, in Input, name string) (*models.Strategy, error) {
	symbol := ""
	if in.Chain != nil {
		symbol = in.Chain.Symbol
	}
	fail := func(reason FailureReason, err error, format string, args ...any) (*models.Strategy, error) {
		return nil, &BuildError{Strategy: name, Symbol: symbol, Reason: reason, Detail: fmt.Sprintf(format, args...), Err: err}
	}

	tmpl, err := b.registry.Get(name)
	if err != nil {
		return fail(ReasonUnknownStrategy, err, "")
	}
	if in.Chain == nil {
		return fail(ReasonInvalidInput, models.ErrEmptyChain, "")
	}
	if err := in.Chain.Validate(); err != nil {
		return fail(ReasonInvalidInput, err, "")
	}
	if err := ctx.Err(); err != nil {
		return fail(ReasonTimeout, err, "")
	}

	selected, err := b.resolve(tmpl, in)
	if err != nil {
		if errors.Is(err, strikes.ErrNoCandidates) {
			return fail(ReasonStrikeUnresolved, err, "")
		}
		return fail(ReasonInvalidInput, err, "")
	}
	if err := ctx.Err(); err != nil {
		return fail(ReasonTimeout, err, "")
	}

	lot := in.LotSize
	if lot <= 0 {
		lot = b.cfg.DefaultLotSize
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}

	legs := make([]models.StrategyLeg, 0, len(tmpl.Legs))
	byName := make(Legs, len(tmpl.Legs))
	for _, spec := range tmpl.Legs {
		l := b.assembleLeg(spec, selected[spec.Name], in, qty)
		legs = append(legs, l)
		byName[spec.Name] = l
	}

	expiry := legs[0].Expiry
	for _, l := range legs[1:] {
		if !l.Expiry.Equal(expiry) {
			return fail(ReasonLegMismatch, ErrInvariant, "legs %s and %s expire on different dates", legs[0].Name, l.Name)
		}
	}
	if tmpl.Validate != nil {
		if err := tmpl.Validate(byName, in.Chain.Spot); err != nil {
			reason := ReasonStrikeOrdering
			var ie *invariantError
			if errors.As(err, &ie) {
				reason = ie.reason
			}
			return fail(reason, err, "")
		}
	}

	net := NetPremium(legs, lot)
	switch {
	case tmpl.Premium == Credit && net <= 0:
		return fail(ReasonNoNetCredit, ErrInvariant, "net premium %.2f", net)
	case tmpl.Premium == Debit && net >= 0:
		return fail(ReasonNoNetDebit, ErrInvariant, "net premium %.2f", net)
	}

	maxProfit, maxLoss := tmpl.Payoff(legs, lot, net)
	if !finiteOrUnbounded(maxProfit) || !finiteOrUnbounded(maxLoss) {
		return fail(ReasonInvalidInput, ErrInvariant, "payoff not finite: profit %v loss %v", maxProfit, maxLoss)
	}

	s := &models.Strategy{
		ID:         uuid.NewString(),
		Name:       tmpl.Name,
		Family:     tmpl.Family,
		Symbol:     in.Chain.Symbol,
		Spot:       in.Chain.Spot,
		LotSize:    lot,
		Legs:       legs,
		NetPremium: net,
		MaxProfit:  maxProfit,
		MaxLoss:    maxLoss,
		Breakevens: Breakevens(legs, lot),
		NetGreeks:  NetGreeks(legs),
		DTE:        in.Chain.DTE(),
		CreatedAt:  b.now().UTC(),
	}
	if b.prob != nil {
		atm := 0.0
		if in.Surface != nil {
			atm = in.Surface.ATMIV(expiry)
		}
		s.ProbabilityOfProfit = b.prob.Estimate(s, probability.Market{
			Spot:         in.Chain.Spot,
			DTE:          s.DTE,
			IVRank:       in.IVRank,
			ATMIV:        atm,
			ExpectedMove: in.ExpectedMove,
		})
	}

	b.logger.Debug().
		Str("symbol", s.Symbol).
		Str("strategy", s.Name).
		Float64("net_premium", s.NetPremium).
		Float64("pop", s.ProbabilityOfProfit).
		Msg("strategy constructed")
	return s, nil
}

func finiteOrUnbounded(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && (v >= 0 || models.IsUnbounded(v))
}

// resolve selects free legs first, then places anchored legs at their anchor's strike.
func (b *Builder) resolve(tmpl Template, in Input) (map[string]strikes.SelectedStrike, error) {
	sel := b.selector
	if in.Surface != nil {
		sel = sel.WithSurface(in.Surface)
	}
	liquidity := strikes.Constraint{MinOpenInterest: b.cfg.MinOpenInterest, MinVolume: b.cfg.MinVolume}

	var free, anchored []strikes.StrikeRequest
	for _, spec := range tmpl.Legs {
		if spec.Anchor != "" {
			continue
		}
		c := spec.Window
		c.MinOpenInterest, c.MinVolume = liquidity.MinOpenInterest, liquidity.MinVolume
		free = append(free, strikes.StrikeRequest{
			Leg: spec.Name, Type: spec.Type, Target: spec.Target, Value: spec.Value, Constraint: c,
		})
	}
	selected, err := sel.Select(free, in.Chain, in.ExpectedMove)
	if err != nil {
		return nil, err
	}

	spot := in.Chain.Spot
	for _, spec := range tmpl.Legs {
		if spec.Anchor == "" {
			continue
		}
		m := selected[spec.Anchor].Quote.Strike / spot
		c := liquidity
		c.MinMoneyness, c.MaxMoneyness = m*(1-1e-9), m*(1+1e-9)
		anchored = append(anchored, strikes.StrikeRequest{
			Leg: spec.Name, Type: spec.Type, Target: strikes.TargetMoneyness, Value: m - 1, Constraint: c,
		})
	}
	if len(anchored) > 0 {
		more, err := sel.Select(anchored, in.Chain, in.ExpectedMove)
		if err != nil {
			return nil, err
		}
		for _, r := range anchored {
			// the last tier ignores the window, so a fallback may land off the anchor
			if more[r.Leg].Quote.Strike != selected[anchorOf(tmpl, r.Leg)].Quote.Strike {
				return nil, &strikes.ResolutionError{Leg: r.Leg, Type: r.Type, Target: r.Target, Value: r.Value}
			}
		}
		for k, v := range more {
			selected[k] = v
		}
	}
	return selected, nil
}

func anchorOf(tmpl Template, leg string) string {
	for _, spec := range tmpl.Legs {
		if spec.Name == leg {
			return spec.Anchor
		}
	}
	return ""
}

func (b *Builder) assembleLeg(spec LegSpec, s strikes.SelectedStrike, in Input, qty int) models.StrategyLeg {
	q := s.Quote
	expiry := q.Expiry
	if expiry.IsZero() {
		expiry = in.Chain.Expiry
	}
	spot := in.Chain.Spot

	iv := q.IV
	if in.Surface != nil {
		iv = in.Surface.SmileAdjustedIV(q.Strike, spot, expiry, q.Type, 0)
	} else if !q.HasIV() {
		iv = b.cfg.FallbackIV
	}

	var greeks models.Greeks
	if q.Greeks != nil {
		greeks = *q.Greeks
	} else {
		greeks = pricing.Greeks(pricing.Inputs{
			Type:   q.Type,
			Spot:   spot,
			Strike: q.Strike,
			Years:  pricing.YearFraction(in.Chain.DTE()),
			Vol:    iv,
			Rate:   b.cfg.RiskFreeRate,
		})
	}

	n := spec.Quantity
	if n <= 0 {
		n = 1
	}
	return models.StrategyLeg{
		Name:      spec.Name,
		Type:      q.Type,
		Side:      spec.Side,
		Strike:    q.Strike,
		Quantity:  n * qty,
		Premium:   q.Premium(),
		Greeks:    greeks,
		IV:        iv,
		Expiry:    expiry,
		Tier:      s.Tier.String(),
		Rationale: rationale(spec, s),
	}
}

func rationale(spec LegSpec, s strikes.SelectedStrike) string {
	target := fmt.Sprintf("%s %g", spec.Target, spec.Value)
	if spec.Anchor != "" {
		target = "strike of " + spec.Anchor
	}
	return fmt.Sprintf("%s %s %.2f for %s (%s tier, delta %.2f, score %.3f)",
		spec.Side, spec.Type, s.Quote.Strike, target, s.Tier, s.Delta, s.Score)
}
