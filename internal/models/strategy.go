package models

import (
	"math"
	"time"
)

// Unbounded marks an unlimited max profit or max loss. MaxProfit and MaxLoss
// are otherwise non-negative magnitudes, so the sentinel cannot collide with a
// real value and survives JSON and SQL round trips where +Inf would not.
const Unbounded = -1.0

// IsUnbounded reports whether v is the Unbounded sentinel.
func IsUnbounded(v float64) bool {
	return v == Unbounded
}

// Side is the position direction of a leg.
type Side string

const (
	// Long is a bought option
	Long Side = "LONG"
	// Short is a sold option
	Short Side = "SHORT"
)

// Sign returns +1 for long legs and -1 for short legs.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Family groups strategy shapes that share payoff and probability math.
type Family string

const (
	// FamilyCreditVertical is a two-leg same-type spread opened for a credit
	FamilyCreditVertical Family = "credit_vertical"
	// FamilyDebitVertical is a two-leg same-type spread opened for a debit
	FamilyDebitVertical Family = "debit_vertical"
	// FamilyCondor is a short put spread paired with a short call spread
	FamilyCondor Family = "condor"
	// FamilyButterfly has wings around a shared body strike
	FamilyButterfly Family = "butterfly"
	// FamilyStraddle is a call and put at the same strike
	FamilyStraddle Family = "straddle"
	// FamilyStrangle is an OTM put and OTM call at different strikes
	FamilyStrangle Family = "strangle"
	// FamilySingle is one naked option
	FamilySingle Family = "single"
)

// StrategyLeg is one executable unit of a strategy. Legs are owned by their Strategy.
type StrategyLeg struct {
	Name      string     `json:"name"`
	Type      OptionType `json:"option_type"`
	Side      Side       `json:"side"`
	Strike    float64    `json:"strike"`
	Quantity  int        `json:"quantity"` // lots
	Premium   float64    `json:"premium"`  // per unit of underlying
	Greeks    Greeks     `json:"greeks"`
	IV        float64    `json:"iv"` // smile-adjusted
	Expiry    time.Time  `json:"expiry"`
	Tier      string     `json:"tier"`
	Rationale string     `json:"rationale"`
}

// Intrinsic returns the leg's per-unit intrinsic value at an underlying price.
func (l StrategyLeg) Intrinsic(price float64) float64 {
	if l.Type == Call {
		return math.Max(0, price-l.Strike)
	}
	return math.Max(0, l.Strike-price)
}

// Strategy is a validated multi-leg options position. A Strategy is only ever
// produced by the builder after every invariant holds and is not mutated afterwards.
type Strategy struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Family              Family        `json:"family"`
	Symbol              string        `json:"symbol"`
	Spot                float64       `json:"spot"`
	LotSize             int           `json:"lot_size"`
	Legs                []StrategyLeg `json:"legs"`
	NetPremium          float64       `json:"net_premium"` // credit > 0, debit < 0
	MaxProfit           float64       `json:"max_profit"`
	MaxLoss             float64       `json:"max_loss"`
	Breakevens          []float64     `json:"breakevens"`
	ProbabilityOfProfit float64       `json:"probability_of_profit"`
	NetGreeks           Greeks        `json:"net_greeks"`
	DTE                 int           `json:"dte"`
	CreatedAt           time.Time     `json:"created_at"`
}

// IsCredit reports whether the strategy was opened for a net credit.
func (s *Strategy) IsCredit() bool {
	return s.NetPremium > 0
}

// Leg returns the named leg.
func (s *Strategy) Leg(name string) (StrategyLeg, bool) {
	for _, l := range s.Legs {
		if l.Name == name {
			return l, true
		}
	}
	return StrategyLeg{}, false
}

// Expiry returns the expiry shared by the legs (the first leg's expiry).
func (s *Strategy) Expiry() time.Time {
	if len(s.Legs) == 0 {
		return time.Time{}
	}
	return s.Legs[0].Expiry
}

// PnLAtExpiry returns the strategy's profit or loss if the underlying settles at price.
func (s *Strategy) PnLAtExpiry(price float64) float64 {
	return ExpiryPnL(s.Legs, s.LotSize, price)
}

// RewardToRisk returns MaxProfit / MaxLoss, or 0 when either side is unbounded or MaxLoss is zero.
func (s *Strategy) RewardToRisk() float64 {
	if IsUnbounded(s.MaxProfit) || IsUnbounded(s.MaxLoss) || s.MaxLoss <= 0 {
		return 0
	}
	return s.MaxProfit / s.MaxLoss
}

// ExpiryPnL returns the settlement profit or loss of a leg set at price.
func ExpiryPnL(legs []StrategyLeg, lotSize int, price float64) float64 {
	if lotSize <= 0 {
		lotSize = 1
	}
	pnl := 0.0
	for _, l := range legs {
		units := float64(l.Quantity * lotSize)
		pnl += l.Side.Sign() * (l.Intrinsic(price) - l.Premium) * units
	}
	return pnl
}
