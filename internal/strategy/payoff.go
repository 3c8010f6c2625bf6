package strategy

import (
	"math"
	"sort"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// NetPremium returns the signed opening premium in currency: positive for a
// credit, negative for a debit.
func NetPremium(legs []models.StrategyLeg, lotSize int) float64 {
	if lotSize <= 0 {
		lotSize = 1
	}
	net := 0.0
	for _, l := range legs {
		net -= l.Side.Sign() * l.Premium * float64(l.Quantity*lotSize)
	}
	return net
}

// NetGreeks sums leg Greeks weighted by side and quantity.
func NetGreeks(legs []models.StrategyLeg) models.Greeks {
	var g models.Greeks
	for _, l := range legs {
		g = g.Add(l.Greeks.Scale(l.Side.Sign() * float64(l.Quantity)))
	}
	return g
}

// units returns the quantity times lot size of the first leg, the multiplier
// used by the closed-form payoffs.
func units(legs []models.StrategyLeg, lotSize int) float64 {
	if lotSize <= 0 {
		lotSize = 1
	}
	q := 1
	if len(legs) > 0 && legs[0].Quantity > 0 {
		q = legs[0].Quantity
	}
	return float64(q * lotSize)
}

// verticalPayoff is the closed form for two-leg spreads: the credit (or
// width minus debit) is the best case and width minus credit (or the debit)
// the worst.
func verticalPayoff(legs []models.StrategyLeg, lotSize int, net float64) (float64, float64) {
	if len(legs) != 2 {
		return scanPayoff(legs, lotSize, net)
	}
	width := math.Abs(legs[0].Strike-legs[1].Strike) * units(legs, lotSize)
	if net > 0 {
		return net, math.Max(0, width-net)
	}
	return math.Max(0, width+net), -net
}

// ironPayoff is the closed form for four-leg iron structures: the credit is
// the best case and the wider wing minus the credit the worst.
func ironPayoff(legs []models.StrategyLeg, lotSize int, net float64) (float64, float64) {
	var putLong, putShort, callShort, callLong float64
	for _, l := range legs {
		switch {
		case l.Type == models.Put && l.Side == models.Long:
			putLong = l.Strike
		case l.Type == models.Put && l.Side == models.Short:
			putShort = l.Strike
		case l.Type == models.Call && l.Side == models.Short:
			callShort = l.Strike
		case l.Type == models.Call && l.Side == models.Long:
			callLong = l.Strike
		}
	}
	if len(legs) != 4 || putLong == 0 || callLong == 0 {
		return scanPayoff(legs, lotSize, net)
	}
	wing := math.Max(putShort-putLong, callLong-callShort) * units(legs, lotSize)
	return math.Max(0, net), math.Max(0, wing-net)
}

// scanPayoff evaluates the piecewise-linear expiry payoff at zero and every
// strike, and reports an unbounded side when the slope past the highest
// strike does not vanish.
func scanPayoff(legs []models.StrategyLeg, lotSize int, _ float64) (float64, float64) {
	points := kinks(legs)
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range points {
		v := models.ExpiryPnL(legs, lotSize, p)
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	slope := upperSlope(legs, lotSize)
	maxProfit, maxLoss := math.Max(0, hi), math.Max(0, -lo)
	if slope > 1e-9 {
		maxProfit = models.Unbounded
	}
	if slope < -1e-9 {
		maxLoss = models.Unbounded
	}
	return maxProfit, maxLoss
}

// kinks returns zero and the distinct strikes in ascending order.
func kinks(legs []models.StrategyLeg) []float64 {
	pts := []float64{0}
	seen := map[float64]bool{0: true}
	for _, l := range legs {
		if !seen[l.Strike] {
			seen[l.Strike] = true
			pts = append(pts, l.Strike)
		}
	}
	sort.Float64s(pts)
	return pts
}

// upperSlope is d(PnL)/d(price) beyond the highest strike.
func upperSlope(legs []models.StrategyLeg, lotSize int) float64 {
	if lotSize <= 0 {
		lotSize = 1
	}
	s := 0.0
	for _, l := range legs {
		if l.Type == models.Call {
			s += l.Side.Sign() * float64(l.Quantity*lotSize)
		}
	}
	return s
}

// Breakevens returns the settlement prices where the expiry payoff crosses zero.
func Breakevens(legs []models.StrategyLeg, lotSize int) []float64 {
	pts := kinks(legs)
	var out []float64
	add := func(x float64) {
		x = math.Round(x*1e6) / 1e6
		for _, v := range out {
			if math.Abs(v-x) < 1e-6 {
				return
			}
		}
		out = append(out, x)
	}

	for i := 0; i < len(pts)-1; i++ {
		x0, x1 := pts[i], pts[i+1]
		y0 := models.ExpiryPnL(legs, lotSize, x0)
		y1 := models.ExpiryPnL(legs, lotSize, x1)
		switch {
		case y0 == 0 && y1 == 0:
			// flat at zero; no single breakeven
		case y0 == 0 && x0 > 0:
			add(x0)
		case (y0 < 0 && y1 > 0) || (y0 > 0 && y1 < 0):
			add(x0 + (x1-x0)*(-y0)/(y1-y0))
		}
	}
	last := pts[len(pts)-1]
	yLast := models.ExpiryPnL(legs, lotSize, last)
	slope := upperSlope(legs, lotSize)
	switch {
	case yLast == 0 && last > 0:
		add(last)
	case slope != 0 && (yLast < 0) == (slope > 0):
		add(last - yLast/slope)
	}
	sort.Float64s(out)
	return out
}
