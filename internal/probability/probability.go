// Package probability estimates the probability of profit of constructed strategies.
package probability

import (
	"math"
	"sort"

	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/pricing"
)

// Market is the per-symbol context a probability estimate depends on.
type Market struct {
	Spot         float64
	DTE          int
	IVRank       float64 // 0..1, 0.5 when unknown
	ATMIV        float64
	ExpectedMove *expectedmove.ExpectedMove
}

// Config holds the adjustment sizes of the market-aware models.
type Config struct {
	Min               float64 `yaml:"min"`
	Max               float64 `yaml:"max"`
	MaxIVAdjustment   float64 `yaml:"max_iv_adjustment"`
	IVDiffSensitivity float64 `yaml:"iv_diff_sensitivity"`
	IVRankWeight      float64 `yaml:"iv_rank_weight"`
	PremiumWeight     float64 `yaml:"premium_weight"`
	ShortDTE          int     `yaml:"short_dte"`
	ShortDTEPenalty   float64 `yaml:"short_dte_penalty"`
}

// DefaultConfig returns the default model constants.
func DefaultConfig() Config {
	return Config{
		Min:               0.01,
		Max:               0.99,
		MaxIVAdjustment:   0.05,
		IVDiffSensitivity: 1.0,
		IVRankWeight:      0.20,
		PremiumWeight:     2.0,
		ShortDTE:          14,
		ShortDTEPenalty:   0.10,
	}
}

// degenerate marks a model that could not be evaluated from the legs.
const degenerate = -1.0

// Engine computes probability of profit per strategy family.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero-valued fields take their defaults.
func NewEngine(cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.Min <= 0 {
		cfg.Min = d.Min
	}
	if cfg.Max <= cfg.Min || cfg.Max >= 1 {
		cfg.Max = d.Max
	}
	if cfg.MaxIVAdjustment <= 0 {
		cfg.MaxIVAdjustment = d.MaxIVAdjustment
	}
	if cfg.IVDiffSensitivity <= 0 {
		cfg.IVDiffSensitivity = d.IVDiffSensitivity
	}
	if cfg.IVRankWeight <= 0 {
		cfg.IVRankWeight = d.IVRankWeight
	}
	if cfg.PremiumWeight <= 0 {
		cfg.PremiumWeight = d.PremiumWeight
	}
	if cfg.ShortDTE <= 0 {
		cfg.ShortDTE = d.ShortDTE
	}
	if cfg.ShortDTEPenalty <= 0 {
		cfg.ShortDTEPenalty = d.ShortDTEPenalty
	}
	return &Engine{cfg: cfg}
}

// Estimate returns the probability of profit in [Min, Max]. It returns 0
// only when the inputs are degenerate (no legs or no spot).
func (e *Engine) Estimate(s *models.Strategy, m Market) float64 {
	if s == nil || len(s.Legs) == 0 {
		return 0
	}
	if m.Spot <= 0 {
		m.Spot = s.Spot
	}
	if m.Spot <= 0 || math.IsNaN(m.Spot) {
		return 0
	}
	if m.DTE <= 0 {
		m.DTE = s.DTE
	}

	var p float64
	switch s.Family {
	case models.FamilySingle:
		p = e.single(s.Legs[0], m)
	case models.FamilyCreditVertical:
		p = e.creditVertical(s.Legs)
	case models.FamilyDebitVertical:
		p = e.debitVertical(s, m)
	case models.FamilyStraddle, models.FamilyStrangle:
		p = e.volatilityBand(s, m)
	case models.FamilyCondor:
		p = e.condor(s, m)
	case models.FamilyButterfly:
		p = e.breakevenBand(s, m)
	default:
		return 0
	}
	if p == degenerate || math.IsNaN(p) {
		return 0
	}
	return e.clamp(p)
}

func (e *Engine) clamp(p float64) float64 {
	return math.Min(e.cfg.Max, math.Max(e.cfg.Min, p))
}

// legDelta returns the absolute leg delta, estimating it when the leg carries none.
func legDelta(l models.StrategyLeg, m Market) float64 {
	if d := l.Greeks.Delta; d != 0 && !math.IsNaN(d) {
		return math.Abs(d)
	}
	vol := l.IV
	if vol <= 0 {
		vol = m.ATMIV
	}
	return math.Abs(pricing.Delta(pricing.Inputs{
		Type:   l.Type,
		Spot:   m.Spot,
		Strike: l.Strike,
		Years:  pricing.YearFraction(m.DTE),
		Vol:    vol,
	}))
}

// single scales the delta-implied probability by a market factor. Rich IV,
// a large premium relative to spot and a short time to expiry all work
// against the buyer and for the seller.
func (e *Engine) single(l models.StrategyLeg, m Market) float64 {
	delta := legDelta(l, m)
	rank := m.IVRank
	if rank < 0 || rank > 1 || math.IsNaN(rank) {
		rank = 0.5
	}
	premiumPct := 0.0
	if l.Premium > 0 {
		premiumPct = l.Premium / m.Spot
	}

	headwind := e.cfg.IVRankWeight*(rank-0.5) + math.Min(premiumPct*e.cfg.PremiumWeight, 0.2)
	if m.DTE < e.cfg.ShortDTE {
		headwind += e.cfg.ShortDTEPenalty * float64(e.cfg.ShortDTE-m.DTE) / float64(e.cfg.ShortDTE)
	}

	if l.Side == models.Long {
		return delta * math.Max(0, 1-headwind)
	}
	return (1 - delta) * (1 + headwind)
}

// creditVertical is 1 - |short delta|, shifted by the IV differential
// between the short and long legs and capped at MaxIVAdjustment.
func (e *Engine) creditVertical(legs []models.StrategyLeg) float64 {
	var short, long *models.StrategyLeg
	for i := range legs {
		if legs[i].Side == models.Short {
			short = &legs[i]
		} else {
			long = &legs[i]
		}
	}
	if short == nil {
		return degenerate
	}
	p := 1 - math.Abs(short.Greeks.Delta)
	if long != nil && short.IV > 0 && long.IV > 0 {
		adj := (short.IV - long.IV) * e.cfg.IVDiffSensitivity
		adj = math.Max(-e.cfg.MaxIVAdjustment, math.Min(e.cfg.MaxIVAdjustment, adj))
		p += adj
	}
	return p
}

// debitVertical is the lognormal probability of settling beyond the
// spread's breakeven, capped by the long leg's delta.
func (e *Engine) debitVertical(s *models.Strategy, m Market) float64 {
	var long *models.StrategyLeg
	vol, n := 0.0, 0
	for i := range s.Legs {
		if s.Legs[i].Side == models.Long {
			long = &s.Legs[i]
		}
		if s.Legs[i].IV > 0 {
			vol += s.Legs[i].IV
			n++
		}
	}
	if long == nil || len(s.Breakevens) == 0 {
		return degenerate
	}
	if n > 0 {
		vol /= float64(n)
	} else {
		vol = m.ATMIV
	}
	be := s.Breakevens[0]
	above := pricing.ProbabilityAbove(m.Spot, be, pricing.YearFraction(m.DTE), vol)
	p := above
	if long.Type == models.Put {
		p = 1 - above
	}
	return math.Min(p, legDelta(*long, m))
}

// sigma is the one standard deviation move used by the band models.
func sigma(s *models.Strategy, m Market) float64 {
	if m.ExpectedMove != nil && m.ExpectedMove.OneSD > 0 {
		return m.ExpectedMove.OneSD
	}
	vol, n := 0.0, 0
	for _, l := range s.Legs {
		if l.IV > 0 {
			vol += l.IV
			n++
		}
	}
	if n > 0 {
		vol /= float64(n)
	} else {
		vol = m.ATMIV
	}
	return m.Spot * vol * math.Sqrt(pricing.YearFraction(m.DTE))
}

// inside returns the normal probability of settling within [lo, hi].
func inside(spot, lo, hi, sd float64) float64 {
	if sd <= 0 || math.IsNaN(sd) {
		if spot >= lo && spot <= hi {
			return 1
		}
		return 0
	}
	return pricing.NormCDF((hi-spot)/sd) - pricing.NormCDF((lo-spot)/sd)
}

func (e *Engine) volatilityBand(s *models.Strategy, m Market) float64 {
	if len(s.Breakevens) < 2 {
		return degenerate
	}
	bes := append([]float64(nil), s.Breakevens...)
	sort.Float64s(bes)
	p := inside(m.Spot, bes[0], bes[len(bes)-1], sigma(s, m))
	if s.Legs[0].Side == models.Long {
		return 1 - p
	}
	return p
}

func (e *Engine) condor(s *models.Strategy, m Market) float64 {
	lo, hi := 0.0, 0.0
	for _, l := range s.Legs {
		if l.Side != models.Short {
			continue
		}
		if l.Type == models.Put {
			lo = l.Strike
		} else {
			hi = l.Strike
		}
	}
	if lo <= 0 || hi <= 0 || lo > hi {
		return degenerate
	}
	return inside(m.Spot, lo, hi, sigma(s, m))
}

func (e *Engine) breakevenBand(s *models.Strategy, m Market) float64 {
	if len(s.Breakevens) < 2 {
		return degenerate
	}
	bes := append([]float64(nil), s.Breakevens...)
	sort.Float64s(bes)
	return inside(m.Spot, bes[0], bes[len(bes)-1], sigma(s, m))
}
