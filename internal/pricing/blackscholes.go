// Package pricing provides Black-Scholes pricing and Greeks used to fill
// gaps in option chain data and to model settlement probabilities.
package pricing

import (
	"math"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// DaysPerYear converts calendar days to year fractions.
const DaysPerYear = 365.0

// minTime keeps d1/d2 finite for same-day expiries.
const minTime = 1.0 / (DaysPerYear * 24)

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// YearFraction converts days to expiry into years, never returning zero.
func YearFraction(dte int) float64 {
	t := float64(dte) / DaysPerYear
	if t < minTime {
		return minTime
	}
	return t
}

// Inputs are the parameters of a single Black-Scholes evaluation.
type Inputs struct {
	Type   models.OptionType
	Spot   float64
	Strike float64
	Years  float64
	Vol    float64
	Rate   float64
}

func (in Inputs) valid() bool {
	return in.Spot > 0 && in.Strike > 0 && in.Vol > 0 && in.Years > 0 &&
		!math.IsNaN(in.Vol) && !math.IsInf(in.Vol, 0)
}

func (in Inputs) d1d2() (float64, float64) {
	sqrtT := math.Sqrt(in.Years)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.Years) / (in.Vol * sqrtT)
	return d1, d1 - in.Vol*sqrtT
}

// Price returns the Black-Scholes premium, or intrinsic value when inputs are degenerate.
func Price(in Inputs) float64 {
	if !in.valid() {
		return intrinsic(in)
	}
	d1, d2 := in.d1d2()
	df := math.Exp(-in.Rate * in.Years)
	if in.Type == models.Call {
		return in.Spot*NormCDF(d1) - in.Strike*df*NormCDF(d2)
	}
	return in.Strike*df*NormCDF(-d2) - in.Spot*NormCDF(-d1)
}

// Delta returns the option delta. Degenerate inputs map to the expiry delta
// (1, 0 or -1, and ±0.5 exactly at the money).
func Delta(in Inputs) float64 {
	if !in.valid() {
		return expiryDelta(in)
	}
	d1, _ := in.d1d2()
	if in.Type == models.Call {
		return NormCDF(d1)
	}
	return NormCDF(d1) - 1
}

// Greeks returns delta, gamma, theta (per calendar day), vega (per vol point)
// and rho (per rate point).
func Greeks(in Inputs) models.Greeks {
	if !in.valid() {
		return models.Greeks{Delta: expiryDelta(in)}
	}
	d1, d2 := in.d1d2()
	sqrtT := math.Sqrt(in.Years)
	df := math.Exp(-in.Rate * in.Years)
	pdf := NormPDF(d1)

	g := models.Greeks{
		Gamma: pdf / (in.Spot * in.Vol * sqrtT),
		Vega:  in.Spot * pdf * sqrtT / 100,
	}
	decay := -in.Spot * pdf * in.Vol / (2 * sqrtT)
	if in.Type == models.Call {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - in.Rate*in.Strike*df*NormCDF(d2)) / DaysPerYear
		g.Rho = in.Strike * in.Years * df * NormCDF(d2) / 100
	} else {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + in.Rate*in.Strike*df*NormCDF(-d2)) / DaysPerYear
		g.Rho = -in.Strike * in.Years * df * NormCDF(-d2) / 100
	}
	return g
}

// ProbabilityAbove returns the lognormal probability that the underlying
// settles above level, with zero drift.
func ProbabilityAbove(spot, level, years, vol float64) float64 {
	if spot <= 0 || level <= 0 {
		if level <= 0 {
			return 1
		}
		return 0
	}
	if vol <= 0 || years <= 0 || math.IsNaN(vol) {
		if spot > level {
			return 1
		}
		return 0
	}
	sqrtT := math.Sqrt(years)
	d2 := (math.Log(spot/level) - 0.5*vol*vol*years) / (vol * sqrtT)
	return NormCDF(d2)
}

func intrinsic(in Inputs) float64 {
	if in.Type == models.Call {
		return math.Max(0, in.Spot-in.Strike)
	}
	return math.Max(0, in.Strike-in.Spot)
}

func expiryDelta(in Inputs) float64 {
	switch {
	case in.Spot == in.Strike:
		if in.Type == models.Call {
			return 0.5
		}
		return -0.5
	case in.Type == models.Call && in.Spot > in.Strike:
		return 1
	case in.Type == models.Put && in.Spot < in.Strike:
		return -1
	default:
		return 0
	}
}
