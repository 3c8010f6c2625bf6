// Package models provides data structures for option chains and multi-leg strategies.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// OptionType identifies a call or a put.
type OptionType string

const (
	// Call is a call option
	Call OptionType = "CALL"
	// Put is a put option
	Put OptionType = "PUT"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Greeks holds first and second order sensitivities of an option price.
type Greeks struct {
	Delta float64 `json:"delta" yaml:"delta"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
	Theta float64 `json:"theta" yaml:"theta"`
	Vega  float64 `json:"vega" yaml:"vega"`
	Rho   float64 `json:"rho" yaml:"rho"`
}

// Scale returns the Greeks multiplied by factor.
func (g Greeks) Scale(factor float64) Greeks {
	return Greeks{
		Delta: g.Delta * factor,
		Gamma: g.Gamma * factor,
		Theta: g.Theta * factor,
		Vega:  g.Vega * factor,
		Rho:   g.Rho * factor,
	}
}

// Add returns the element-wise sum of two Greek sets.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// OptionQuote is one row of an options chain snapshot. Quotes are read-only
// once handed to the engine.
type OptionQuote struct {
	Strike       float64    `json:"strike" yaml:"strike"`
	Type         OptionType `json:"option_type" yaml:"option_type"`
	Expiry       time.Time  `json:"expiry" yaml:"expiry"`
	Last         float64    `json:"last" yaml:"last"`
	Bid          float64    `json:"bid" yaml:"bid"`
	Ask          float64    `json:"ask" yaml:"ask"`
	IV           float64    `json:"iv" yaml:"iv"` // decimal (0.20 = 20%), 0 when missing
	Greeks       *Greeks    `json:"greeks,omitempty" yaml:"greeks,omitempty"`
	OpenInterest int64      `json:"open_interest" yaml:"open_interest"`
	Volume       int64      `json:"volume" yaml:"volume"`
}

// HasIV reports whether the quote carries a usable implied volatility.
func (q OptionQuote) HasIV() bool {
	return q.IV > 0 && !math.IsNaN(q.IV) && !math.IsInf(q.IV, 0)
}

// Delta returns the quote's delta and whether it is present.
func (q OptionQuote) Delta() (float64, bool) {
	if q.Greeks == nil || math.IsNaN(q.Greeks.Delta) || math.IsInf(q.Greeks.Delta, 0) {
		return 0, false
	}
	return q.Greeks.Delta, true
}

// HasQuote reports whether bid and ask form a usable two-sided market.
func (q OptionQuote) HasQuote() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// Premium returns the bid/ask mid when a two-sided market exists, otherwise the last traded price.
func (q OptionQuote) Premium() float64 {
	if q.HasQuote() {
		return (q.Bid + q.Ask) / 2
	}
	if q.Last > 0 && !math.IsNaN(q.Last) {
		return q.Last
	}
	return 0
}

// SpreadPct returns the bid/ask spread as a fraction of mid, or -1 without a two-sided market.
func (q OptionQuote) SpreadPct() float64 {
	if !q.HasQuote() {
		return -1
	}
	mid := (q.Bid + q.Ask) / 2
	if mid <= 0 {
		return -1
	}
	return (q.Ask - q.Bid) / mid
}

// Moneyness returns strike divided by spot.
func (q OptionQuote) Moneyness(spot float64) float64 {
	if spot <= 0 {
		return 0
	}
	return q.Strike / spot
}

// IsLiquid reports whether the row shows any open interest or traded volume.
func (q OptionQuote) IsLiquid() bool {
	return q.OpenInterest > 0 || q.Volume > 0
}

var (
	// ErrInvalidSpot is returned when the spot price is zero, negative or not a number
	ErrInvalidSpot = errors.New("spot price must be positive")
	// ErrEmptyChain is returned when the chain has no rows
	ErrEmptyChain = errors.New("option chain is empty")
	// ErrMissingSide is returned when the chain lacks either calls or puts
	ErrMissingSide = errors.New("option chain must contain both calls and puts")
)

// OptionChain is a single-expiry options chain snapshot for one underlying.
type OptionChain struct {
	Symbol string        `json:"symbol" yaml:"symbol"`
	Spot   float64       `json:"spot" yaml:"spot"`
	Expiry time.Time     `json:"expiry" yaml:"expiry"`
	AsOf   time.Time     `json:"as_of" yaml:"as_of"`
	Quotes []OptionQuote `json:"quotes" yaml:"quotes"`
}

// Validate rejects chains the engine cannot work with.
func (c *OptionChain) Validate() error {
	if c == nil {
		return ErrEmptyChain
	}
	if c.Spot <= 0 || math.IsNaN(c.Spot) || math.IsInf(c.Spot, 0) {
		return fmt.Errorf("%s: %w (got %v)", c.Symbol, ErrInvalidSpot, c.Spot)
	}
	if len(c.Quotes) == 0 {
		return fmt.Errorf("%s: %w", c.Symbol, ErrEmptyChain)
	}
	var calls, puts int
	for _, q := range c.Quotes {
		switch q.Type {
		case Call:
			calls++
		case Put:
			puts++
		}
	}
	if calls == 0 || puts == 0 {
		return fmt.Errorf("%s: %w (calls=%d puts=%d)", c.Symbol, ErrMissingSide, calls, puts)
	}
	return nil
}

// DTE returns whole days from AsOf to Expiry, clamped at zero.
func (c *OptionChain) DTE() int {
	return DaysBetween(c.AsOf, c.Expiry)
}

// Calls returns the call rows in chain order.
func (c *OptionChain) Calls() []OptionQuote {
	return c.ofType(Call)
}

// Puts returns the put rows in chain order.
func (c *OptionChain) Puts() []OptionQuote {
	return c.ofType(Put)
}

func (c *OptionChain) ofType(t OptionType) []OptionQuote {
	out := make([]OptionQuote, 0, len(c.Quotes)/2)
	for _, q := range c.Quotes {
		if q.Type == t {
			out = append(out, q)
		}
	}
	return out
}

// Find returns the row for a strike and type.
func (c *OptionChain) Find(strike float64, t OptionType) (OptionQuote, bool) {
	for _, q := range c.Quotes {
		if q.Type == t && q.Strike == strike {
			return q, true
		}
	}
	return OptionQuote{}, false
}

// DaysBetween returns whole calendar days from one date to another, clamped at zero.
func DaysBetween(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
