package strikes

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/pricing"
)

// Weights are the composite score weights. They need not sum to one.
type Weights struct {
	Distance     float64 `yaml:"distance"`
	OpenInterest float64 `yaml:"open_interest"`
	Spread       float64 `yaml:"spread"`
	Volume       float64 `yaml:"volume"`
}

// Config holds the selector's tunables.
type Config struct {
	Weights                Weights    `yaml:"weights"`
	RelaxedWindowFactor    float64    `yaml:"relaxed_window_factor"`
	RelaxedLiquidityFactor float64    `yaml:"relaxed_liquidity_factor"`
	DefaultConstraint      Constraint `yaml:"default_constraint"`
	// DeltaScale and MoneynessScale set the distance at which the distance score halves.
	DeltaScale     float64 `yaml:"delta_scale"`
	MoneynessScale float64 `yaml:"moneyness_scale"`
	FallbackIV     float64 `yaml:"fallback_iv"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
}

// DefaultConfig returns the documented default table.
func DefaultConfig() Config {
	return Config{
		Weights:                Weights{Distance: 0.40, OpenInterest: 0.30, Spread: 0.20, Volume: 0.10},
		RelaxedWindowFactor:    2.0,
		RelaxedLiquidityFactor: 0.25,
		DefaultConstraint:      Constraint{MinOpenInterest: 100, MinVolume: 1},
		DeltaScale:             0.05,
		MoneynessScale:         0.01,
		FallbackIV:             0.20,
	}
}

// IVSource supplies a smile-adjusted IV for rows without one. volatility.Surface implements it.
type IVSource interface {
	SmileAdjustedIV(strike, spot float64, expiry time.Time, t models.OptionType, baseIV float64) float64
}

// Selector resolves StrikeRequests. It holds no mutable state and is safe
// for concurrent use.
type Selector struct {
	cfg    Config
	logger zerolog.Logger
	iv     IVSource
}

// NewSelector creates a Selector.
func NewSelector(cfg Config, logger zerolog.Logger) *Selector {
	d := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = d.Weights
	}
	if cfg.RelaxedWindowFactor < 1 {
		cfg.RelaxedWindowFactor = d.RelaxedWindowFactor
	}
	if cfg.RelaxedLiquidityFactor <= 0 || cfg.RelaxedLiquidityFactor > 1 {
		cfg.RelaxedLiquidityFactor = d.RelaxedLiquidityFactor
	}
	if cfg.DeltaScale <= 0 {
		cfg.DeltaScale = d.DeltaScale
	}
	if cfg.MoneynessScale <= 0 {
		cfg.MoneynessScale = d.MoneynessScale
	}
	if cfg.FallbackIV <= 0 {
		cfg.FallbackIV = d.FallbackIV
	}
	return &Selector{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// WithSurface returns a copy of the selector that estimates missing deltas
// from the given IV source.
func (s *Selector) WithSurface(iv IVSource) *Selector {
	c := *s
	c.iv = iv
	return &c
}

// candidate is a chain row under evaluation for one request.
type candidate struct {
	quote     models.OptionQuote
	delta     float64
	estimated bool
	distance  float64
}

// Select resolves every request against the chain. em is required only for
// expected-move targets. On any unresolved leg it returns a *ResolutionError
// and no partial result.
func (s *Selector) Select(requests []StrikeRequest, chain *models.OptionChain, em *expectedmove.ExpectedMove) (map[string]SelectedStrike, error) {
	if chain == nil || chain.Spot <= 0 || math.IsNaN(chain.Spot) || math.IsInf(chain.Spot, 0) {
		return nil, fmt.Errorf("%w: chain missing or spot not positive", ErrInvalidRequest)
	}
	if err := validateRequests(requests); err != nil {
		return nil, err
	}
	for _, r := range requests {
		if r.Target == TargetExpectedMove && em == nil {
			return nil, fmt.Errorf("%w: leg %q targets expected move but none was supplied", ErrInvalidRequest, r.Leg)
		}
	}

	out := make(map[string]SelectedStrike, len(requests))
	for _, r := range requests {
		sel, err := s.resolve(r, chain, em)
		if err != nil {
			return nil, err
		}
		out[r.Leg] = sel
	}
	return out, nil
}

func (s *Selector) resolve(r StrikeRequest, chain *models.OptionChain, em *expectedmove.ExpectedMove) (SelectedStrike, error) {
	spot := chain.Spot
	target := r.Value
	targetPrice := 0.0
	switch r.Target {
	case TargetDelta:
		target = math.Abs(r.Value)
		if r.Type == models.Put {
			target = -target
		}
	case TargetExpectedMove:
		targetPrice = spot + r.Value*em.OneSD
	case TargetMoneyness, TargetATM:
		targetPrice = spot * (1 + r.Value)
	}

	constraint := r.Constraint
	if constraint.IsZero() {
		constraint = s.cfg.DefaultConstraint
	}
	tiers := []Constraint{
		constraint,
		constraint.relax(s.cfg.RelaxedWindowFactor, s.cfg.RelaxedLiquidityFactor),
	}

	for i, c := range tiers {
		tier := Tier(i)
		cands := s.candidates(r, chain, c, target, targetPrice)
		if len(cands) == 0 {
			s.logger.Debug().
				Str("symbol", chain.Symbol).
				Str("leg", r.Leg).
				Stringer("tier", tier).
				Msg("no candidates, relaxing constraints")
			continue
		}
		best, score := s.pick(cands, r.Target)
		return s.selected(r, best, tier, score, targetPrice), nil
	}

	cands := s.liquidityOnly(r, chain, target, targetPrice)
	if len(cands) == 0 {
		return SelectedStrike{}, &ResolutionError{Leg: r.Leg, Type: r.Type, Target: r.Target, Value: r.Value}
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if closer(c, best) {
			best = c
		}
	}
	s.logger.Debug().
		Str("symbol", chain.Symbol).
		Str("leg", r.Leg).
		Float64("strike", best.quote.Strike).
		Msg("strike resolved by liquidity-only fallback")
	return s.selected(r, best, TierLiquidityOnly, s.distanceScore(best.distance, r.Target), targetPrice), nil
}

func (s *Selector) selected(r StrikeRequest, c candidate, tier Tier, score, targetPrice float64) SelectedStrike {
	return SelectedStrike{
		Leg:         r.Leg,
		Quote:       c.quote,
		Tier:        tier,
		Score:       score,
		TargetPrice: targetPrice,
		Distance:    c.distance,
		Delta:       c.delta,
		Estimated:   c.estimated,
	}
}

// candidates returns rows passing a strict or relaxed tier. Rows without IV,
// delta or a usable premium are skipped.
func (s *Selector) candidates(r StrikeRequest, chain *models.OptionChain, c Constraint, target, targetPrice float64) []candidate {
	var out []candidate
	for _, q := range chain.Quotes {
		if q.Type != r.Type || q.Strike <= 0 || !q.HasIV() || q.Premium() <= 0 {
			continue
		}
		delta, ok := q.Delta()
		if !ok {
			continue
		}
		if !c.inWindow(q.Moneyness(chain.Spot)) || !c.liquid(q) {
			continue
		}
		out = append(out, candidate{
			quote:    q,
			delta:    delta,
			distance: distance(r.Target, q.Strike, delta, target, targetPrice, chain.Spot),
		})
	}
	return out
}

// liquidityOnly returns every liquid, priced row of the right type,
// estimating missing deltas. Open interest alone does not make a row usable:
// without a premium the leg cannot be priced.
func (s *Selector) liquidityOnly(r StrikeRequest, chain *models.OptionChain, target, targetPrice float64) []candidate {
	var out []candidate
	for _, q := range chain.Quotes {
		if q.Type != r.Type || q.Strike <= 0 || !q.IsLiquid() || q.Premium() <= 0 {
			continue
		}
		delta, ok := q.Delta()
		estimated := false
		if !ok {
			delta = s.estimateDelta(q, chain)
			estimated = true
		}
		out = append(out, candidate{
			quote:     q,
			delta:     delta,
			estimated: estimated,
			distance:  distance(r.Target, q.Strike, delta, target, targetPrice, chain.Spot),
		})
	}
	return out
}

func (s *Selector) estimateDelta(q models.OptionQuote, chain *models.OptionChain) float64 {
	iv := q.IV
	if !q.HasIV() {
		iv = s.cfg.FallbackIV
		if s.iv != nil {
			iv = s.iv.SmileAdjustedIV(q.Strike, chain.Spot, chain.Expiry, q.Type, 0)
		}
	}
	return pricing.Delta(pricing.Inputs{
		Type:   q.Type,
		Spot:   chain.Spot,
		Strike: q.Strike,
		Years:  pricing.YearFraction(chain.DTE()),
		Vol:    iv,
		Rate:   s.cfg.RiskFreeRate,
	})
}

// distance is |delta - target| for delta targets and |strike - target| / spot otherwise.
func distance(t TargetType, strike, delta, target, targetPrice, spot float64) float64 {
	if t == TargetDelta {
		return math.Abs(delta - target)
	}
	return math.Abs(strike-targetPrice) / spot
}

func (s *Selector) distanceScore(d float64, t TargetType) float64 {
	scale := s.cfg.MoneynessScale
	if t == TargetDelta {
		scale = s.cfg.DeltaScale
	}
	return 1 / (1 + d/scale)
}

// pick returns the highest composite score. Liquidity and volume are
// normalised by the best candidate; spread tightness by the widest spread.
func (s *Selector) pick(cands []candidate, t TargetType) (candidate, float64) {
	var maxOI, maxVol int64
	maxSpread := 0.0
	for _, c := range cands {
		if c.quote.OpenInterest > maxOI {
			maxOI = c.quote.OpenInterest
		}
		if c.quote.Volume > maxVol {
			maxVol = c.quote.Volume
		}
		if sp := c.quote.SpreadPct(); sp > maxSpread {
			maxSpread = sp
		}
	}

	w := s.cfg.Weights
	bestIdx, bestScore := -1, 0.0
	for i, c := range cands {
		score := w.Distance * s.distanceScore(c.distance, t)
		if maxOI > 0 {
			score += w.OpenInterest * float64(c.quote.OpenInterest) / float64(maxOI)
		}
		if maxVol > 0 {
			score += w.Volume * float64(c.quote.Volume) / float64(maxVol)
		}
		if sp := c.quote.SpreadPct(); sp >= 0 {
			if maxSpread > 0 {
				score += w.Spread * (1 - sp/maxSpread)
			} else {
				score += w.Spread
			}
		}
		if bestIdx < 0 || score > bestScore+1e-12 ||
			(math.Abs(score-bestScore) <= 1e-12 && closer(c, cands[bestIdx])) {
			bestIdx, bestScore = i, score
		}
	}
	return cands[bestIdx], bestScore
}

// closer orders by distance, then lower strike.
func closer(a, b candidate) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.quote.Strike < b.quote.Strike
}
