// Package expectedmove turns at-the-money straddle pricing into expected
// price-move bands used as strike targets.
package expectedmove

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/pricing"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

// StraddleFactor converts an ATM straddle price into a one standard deviation move.
const StraddleFactor = 0.8

// epsilon replaces zero or negative premiums and spot.
const epsilon = 1e-6

// Source records how an ExpectedMove was derived.
type Source string

const (
	// SourceStraddle uses the ATM straddle premium
	SourceStraddle Source = "straddle"
	// SourceSurface uses the fitted ATM IV when no straddle is quoted
	SourceSurface Source = "surface"
)

// ExpectedMove holds the one and two standard deviation move bands for an expiry.
type ExpectedMove struct {
	StraddlePrice float64 `json:"straddle_price"`
	OneSD         float64 `json:"one_sd_move"`
	TwoSD         float64 `json:"two_sd_move"`
	Daily         float64 `json:"daily_move"`
	Upper1SD      float64 `json:"upper_1sd"`
	Lower1SD      float64 `json:"lower_1sd"`
	Upper2SD      float64 `json:"upper_2sd"`
	Lower2SD      float64 `json:"lower_2sd"`
	Spot          float64 `json:"spot"`
	DTE           int     `json:"dte"`
	ATMStrike     float64 `json:"atm_strike,omitempty"`
	Source        Source  `json:"source"`
}

// Calculator computes expected moves.
type Calculator struct {
	logger zerolog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(logger zerolog.Logger) *Calculator {
	return &Calculator{logger: logger}
}

func clamp(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return epsilon
	}
	return v
}

// Calculate derives move bands from ATM call and put premiums. A dte of zero
// or less is treated as one day.
func (c *Calculator) Calculate(atmCall, atmPut, spot float64, dte int) ExpectedMove {
	if dte <= 0 {
		c.logger.Warn().Int("dte", dte).Msg("non-positive days to expiry, using 1")
		dte = 1
	}
	spot = clamp(spot)
	straddle := clamp(atmCall) + clamp(atmPut)
	return bands(straddle, straddle*StraddleFactor, spot, dte, SourceStraddle)
}

func bands(straddle, oneSD, spot float64, dte int, src Source) ExpectedMove {
	twoSD := 2 * oneSD
	return ExpectedMove{
		StraddlePrice: straddle,
		OneSD:         oneSD,
		TwoSD:         twoSD,
		Daily:         oneSD / math.Sqrt(float64(dte)),
		Upper1SD:      spot + oneSD,
		Lower1SD:      math.Max(0, spot-oneSD),
		Upper2SD:      spot + twoSD,
		Lower2SD:      math.Max(0, spot-twoSD),
		Spot:          spot,
		DTE:           dte,
		Source:        src,
	}
}

// FromChain locates the ATM strike quoted on both sides and prices its
// straddle. Without one it estimates the move from the surface's ATM IV.
func (c *Calculator) FromChain(chain *models.OptionChain, surface *volatility.Surface) ExpectedMove {
	dte := chain.DTE()
	if strike, call, put, ok := atmStraddle(chain); ok {
		em := c.Calculate(call, put, chain.Spot, dte)
		em.ATMStrike = strike
		return em
	}

	if dte <= 0 {
		dte = 1
	}
	iv := 0.0
	if surface != nil {
		iv = surface.ATMIV(chain.Expiry)
	}
	if iv <= 0 {
		iv = volatility.DefaultConfig().DefaultATMIV
	}
	spot := clamp(chain.Spot)
	oneSD := spot * iv * math.Sqrt(float64(dte)/pricing.DaysPerYear)
	c.logger.Warn().
		Str("symbol", chain.Symbol).
		Float64("atm_iv", iv).
		Msg("no ATM straddle quoted, estimating expected move from surface")
	return bands(oneSD/StraddleFactor, oneSD, spot, dte, SourceSurface)
}

// atmStraddle returns the strike nearest spot carrying both a call and a put premium.
func atmStraddle(chain *models.OptionChain) (strike, call, put float64, ok bool) {
	calls := make(map[float64]float64)
	for _, q := range chain.Quotes {
		if q.Type == models.Call && q.Premium() > 0 {
			calls[q.Strike] = q.Premium()
		}
	}
	best := math.MaxFloat64
	for _, q := range chain.Quotes {
		if q.Type != models.Put || q.Premium() <= 0 {
			continue
		}
		cp, found := calls[q.Strike]
		if !found {
			continue
		}
		d := math.Abs(q.Strike - chain.Spot)
		if d < best || (d == best && q.Strike < strike) {
			best, strike, call, put, ok = d, q.Strike, cp, q.Premium(), true
		}
	}
	return strike, call, put, ok
}
