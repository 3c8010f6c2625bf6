// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// snap divides x by |tick| in decimal, applies step to the quotient and
// scales back. Non-finite inputs and a zero tick return x unchanged.
func snap(x, tick float64, step func(decimal.Decimal) decimal.Decimal) float64 {
	tick = math.Abs(tick)
	if tick == 0 || math.IsNaN(tick) || math.IsInf(tick, 0) || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := decimal.NewFromFloat(tick)
	f, _ := step(decimal.NewFromFloat(x).Div(t)).Mul(t).Float64()
	return f
}

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.235 becomes 1.24.
func RoundToTick(x, tick float64) float64 {
	return snap(x, tick, func(d decimal.Decimal) decimal.Decimal { return d.Round(0) })
}

// FloorToTick rounds x down to a tick multiple.
func FloorToTick(x, tick float64) float64 {
	return snap(x, tick, decimal.Decimal.Floor)
}

// CeilToTick rounds x up to a tick multiple.
func CeilToTick(x, tick float64) float64 {
	return snap(x, tick, decimal.Decimal.Ceil)
}

// StrikeGrid returns strikes from lo to hi inclusive on a step, both ends
// snapped outward to the grid.
func StrikeGrid(lo, hi, step float64) []float64 {
	if step <= 0 || hi < lo {
		return nil
	}
	s := decimal.NewFromFloat(step)
	start := decimal.NewFromFloat(lo).Div(s).Floor().Mul(s)
	end := decimal.NewFromFloat(hi).Div(s).Ceil().Mul(s)
	var out []float64
	for k := start; k.LessThanOrEqual(end); k = k.Add(s) {
		f, _ := k.Float64()
		out = append(out, f)
	}
	return out
}
