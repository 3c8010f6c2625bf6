// Package strikes resolves declarative per-leg strike requests against an
// options chain, relaxing constraints in stages when the strict pass finds
// nothing.
package strikes

import (
	"errors"
	"fmt"
	"math"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// TargetType selects how a request's target strike is computed.
type TargetType string

const (
	// TargetDelta targets the quote whose delta is closest to the value
	TargetDelta TargetType = "delta"
	// TargetExpectedMove targets spot + value × one standard deviation move
	TargetExpectedMove TargetType = "expected_move"
	// TargetMoneyness targets spot × (1 + value)
	TargetMoneyness TargetType = "moneyness"
	// TargetATM targets spot × (1 + value), normally with value 0
	TargetATM TargetType = "atm"
)

// Valid returns true if the TargetType is one of the defined constants
func (t TargetType) Valid() bool {
	switch t {
	case TargetDelta, TargetExpectedMove, TargetMoneyness, TargetATM:
		return true
	default:
		return false
	}
}

// Constraint bounds the candidate set of a request. A zero MinMoneyness or
// MaxMoneyness leaves that side of the window open.
type Constraint struct {
	MinMoneyness    float64 `yaml:"min_moneyness" json:"min_moneyness"`
	MaxMoneyness    float64 `yaml:"max_moneyness" json:"max_moneyness"`
	MinOpenInterest int64   `yaml:"min_open_interest" json:"min_open_interest"`
	MinVolume       int64   `yaml:"min_volume" json:"min_volume"`
}

// IsZero reports whether no field of the constraint is set.
func (c Constraint) IsZero() bool {
	return c == Constraint{}
}

func (c Constraint) inWindow(moneyness float64) bool {
	if c.MinMoneyness > 0 && moneyness < c.MinMoneyness {
		return false
	}
	if c.MaxMoneyness > 0 && moneyness > c.MaxMoneyness {
		return false
	}
	return true
}

func (c Constraint) liquid(q models.OptionQuote) bool {
	return q.OpenInterest >= c.MinOpenInterest && q.Volume >= c.MinVolume
}

// relax widens the moneyness window about its centre and scales the
// liquidity thresholds down.
func (c Constraint) relax(windowFactor, liquidityFactor float64) Constraint {
	r := c
	if c.MinMoneyness > 0 && c.MaxMoneyness > 0 {
		mid := (c.MinMoneyness + c.MaxMoneyness) / 2
		half := (c.MaxMoneyness - c.MinMoneyness) / 2 * windowFactor
		r.MinMoneyness = math.Max(mid-half, 1e-6)
		r.MaxMoneyness = mid + half
	} else {
		if c.MinMoneyness > 0 {
			r.MinMoneyness = 1 - (1-c.MinMoneyness)*windowFactor
			if r.MinMoneyness <= 0 {
				r.MinMoneyness = 1e-6
			}
		}
		if c.MaxMoneyness > 0 {
			r.MaxMoneyness = 1 + (c.MaxMoneyness-1)*windowFactor
		}
	}
	r.MinOpenInterest = int64(math.Floor(float64(c.MinOpenInterest) * liquidityFactor))
	r.MinVolume = int64(math.Floor(float64(c.MinVolume) * liquidityFactor))
	return r
}

// StrikeRequest declares how one leg's strike should be chosen. Leg names
// are unique within a strategy.
type StrikeRequest struct {
	Leg        string            `json:"leg"`
	Type       models.OptionType `json:"option_type"`
	Target     TargetType        `json:"target"`
	Value      float64           `json:"value"`
	Constraint Constraint        `json:"constraint"`
}

// Tier is the constraint-relaxation stage that produced a selection.
type Tier int

const (
	// TierStrict applies the request's constraints as declared
	TierStrict Tier = iota
	// TierRelaxed widens the moneyness window and lowers liquidity thresholds
	TierRelaxed
	// TierLiquidityOnly drops the window and requires only some liquidity
	TierLiquidityOnly
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierRelaxed:
		return "relaxed"
	case TierLiquidityOnly:
		return "liquidity_only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// SelectedStrike is the resolution of one StrikeRequest.
type SelectedStrike struct {
	Leg         string             `json:"leg"`
	Quote       models.OptionQuote `json:"quote"`
	Tier        Tier               `json:"tier"`
	Score       float64            `json:"score"`
	TargetPrice float64            `json:"target_price,omitempty"`
	Distance    float64            `json:"distance"`
	Delta       float64            `json:"delta"`
	Estimated   bool               `json:"delta_estimated,omitempty"`
}

var (
	// ErrInvalidRequest is returned for malformed requests or inputs
	ErrInvalidRequest = errors.New("invalid strike request")
	// ErrNoCandidates is returned when every tier comes up empty
	ErrNoCandidates = errors.New("no candidate strikes")
)

// ResolutionError reports a request that could not be resolved by any tier.
type ResolutionError struct {
	Leg    string
	Type   models.OptionType
	Target TargetType
	Value  float64
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("leg %s (%s %s=%g): %v after %d tiers",
		e.Leg, e.Type, e.Target, e.Value, ErrNoCandidates, int(TierLiquidityOnly)+1)
}

// Unwrap returns ErrNoCandidates.
func (e *ResolutionError) Unwrap() error {
	return ErrNoCandidates
}

func validateRequests(requests []StrikeRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("%w: no requests", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if r.Leg == "" {
			return fmt.Errorf("%w: empty leg name", ErrInvalidRequest)
		}
		if seen[r.Leg] {
			return fmt.Errorf("%w: duplicate leg %q", ErrInvalidRequest, r.Leg)
		}
		seen[r.Leg] = true
		if !r.Type.Valid() {
			return fmt.Errorf("%w: leg %q has option type %q", ErrInvalidRequest, r.Leg, r.Type)
		}
		if !r.Target.Valid() {
			return fmt.Errorf("%w: leg %q has target type %q", ErrInvalidRequest, r.Leg, r.Target)
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return fmt.Errorf("%w: leg %q target value is not finite", ErrInvalidRequest, r.Leg)
		}
		if r.Target == TargetDelta && (r.Value == 0 || math.Abs(r.Value) >= 1) {
			return fmt.Errorf("%w: leg %q delta target %g outside (0, 1)", ErrInvalidRequest, r.Leg, r.Value)
		}
		if r.Constraint.MaxMoneyness > 0 && r.Constraint.MinMoneyness > r.Constraint.MaxMoneyness {
			return fmt.Errorf("%w: leg %q moneyness window is inverted", ErrInvalidRequest, r.Leg)
		}
	}
	return nil
}
