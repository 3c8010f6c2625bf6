package probability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/eddiefleurent/strike_engine/internal/expectedmove"
	"github.com/eddiefleurent/strike_engine/internal/models"
)

func leg(t models.OptionType, side models.Side, strike, premium, delta, iv float64) models.StrategyLeg {
	return models.StrategyLeg{
		Type: t, Side: side, Strike: strike, Quantity: 1, Premium: premium,
		Greeks: models.Greeks{Delta: delta}, IV: iv,
	}
}

func TestEstimate_CreditVertical(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := &models.Strategy{
		Family: models.FamilyCreditVertical, Spot: 1000, DTE: 30,
		Legs: []models.StrategyLeg{
			leg(models.Put, models.Short, 950, 50, -0.30, 0.20),
			leg(models.Put, models.Long, 900, 20, -0.15, 0.20),
		},
	}
	assert.InDelta(t, 0.70, e.Estimate(s, Market{Spot: 1000, DTE: 30}), 1e-12)

	// Skew makes the long wing richer; the shift is capped.
	s.Legs[1].IV = 0.40
	assert.InDelta(t, 0.65, e.Estimate(s, Market{Spot: 1000, DTE: 30}), 1e-12)
	s.Legs[1].IV = 0.19
	assert.InDelta(t, 0.71, e.Estimate(s, Market{Spot: 1000, DTE: 30}), 1e-12)
}

func TestEstimate_DebitVerticalUsesBreakeven(t *testing.T) {
	e := NewEngine(DefaultConfig())
	s := &models.Strategy{
		Family: models.FamilyDebitVertical, Spot: 1000, DTE: 30,
		Legs: []models.StrategyLeg{
			leg(models.Call, models.Long, 1000, 30, 0.55, 0.20),
			leg(models.Call, models.Short, 1050, 10, 0.30, 0.19),
		},
		Breakevens: []float64{1020},
	}
	p := e.Estimate(s, Market{Spot: 1000, DTE: 30})
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 0.5)
	assert.LessOrEqual(t, p, 0.55)

	// A deep in-the-money breakeven is capped by the long delta, never reported as zero.
	s.Breakevens = []float64{900}
	assert.InDelta(t, 0.55, e.Estimate(s, Market{Spot: 1000, DTE: 30}), 1e-12)
}

func TestEstimate_SingleLegSensitivity(t *testing.T) {
	e := NewEngine(DefaultConfig())
	long := &models.Strategy{
		Family: models.FamilySingle, Spot: 1000,
		Legs:   []models.StrategyLeg{leg(models.Call, models.Long, 1020, 15, 0.35, 0.2)},
	}
	calm := e.Estimate(long, Market{Spot: 1000, DTE: 30, IVRank: 0.2})
	rich := e.Estimate(long, Market{Spot: 1000, DTE: 30, IVRank: 0.9})
	short := e.Estimate(long, Market{Spot: 1000, DTE: 3, IVRank: 0.2})
	assert.Greater(t, calm, rich, "higher IV rank should hurt a long option")
	assert.Greater(t, calm, short, "short DTE should hurt a long option")

	sold := &models.Strategy{
		Family: models.FamilySingle, Spot: 1000,
		Legs:   []models.StrategyLeg{leg(models.Put, models.Short, 970, 12, -0.25, 0.2)},
	}
	low := e.Estimate(sold, Market{Spot: 1000, DTE: 30, IVRank: 0.2})
	high := e.Estimate(sold, Market{Spot: 1000, DTE: 30, IVRank: 0.9})
	assert.Greater(t, high, low)
}

func TestEstimate_BandModels(t *testing.T) {
	e := NewEngine(DefaultConfig())
	em := expectedmove.NewCalculator(zerolog.Nop()).Calculate(45, 40, 1000, 30)
	m := Market{Spot: 1000, DTE: 30, ExpectedMove: &em}

	condor := &models.Strategy{
		Family: models.FamilyCondor, Spot: 1000,
		Legs: []models.StrategyLeg{
			leg(models.Put, models.Long, 900, 4, -0.08, 0.24),
			leg(models.Put, models.Short, 932, 9, -0.16, 0.22),
			leg(models.Call, models.Short, 1068, 8, 0.15, 0.19),
			leg(models.Call, models.Long, 1100, 3, 0.07, 0.19),
		},
	}
	// Short strikes sit one expected move either side of spot.
	assert.InDelta(t, 0.6827, e.Estimate(condor, m), 1e-3)

	longStraddle := &models.Strategy{
		Family: models.FamilyStraddle, Spot: 1000,
		Legs: []models.StrategyLeg{
			leg(models.Call, models.Long, 1000, 45, 0.5, 0.2),
			leg(models.Put, models.Long, 1000, 40, -0.5, 0.2),
		},
		Breakevens: []float64{915, 1085},
	}
	shortStraddle := *longStraddle
	shortStraddle.Legs = []models.StrategyLeg{
		leg(models.Call, models.Short, 1000, 45, 0.5, 0.2),
		leg(models.Put, models.Short, 1000, 40, -0.5, 0.2),
	}
	pl := e.Estimate(longStraddle, m)
	ps := e.Estimate(&shortStraddle, m)
	assert.InDelta(t, 1, pl+ps, 1e-12)

	fly := &models.Strategy{Family: models.FamilyButterfly, Spot: 1000, Legs: condor.Legs, Breakevens: []float64{1068, 932}}
	assert.InDelta(t, 0.6827, e.Estimate(fly, m), 1e-3)
}

func TestEstimate_BoundsAndDegenerate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Equal(t, 0.0, e.Estimate(nil, Market{}))
	assert.Equal(t, 0.0, e.Estimate(&models.Strategy{Family: models.FamilySingle}, Market{Spot: 100}))
	assert.Equal(t, 0.0, e.Estimate(&models.Strategy{
		Family: models.FamilyStraddle,
		Legs:   []models.StrategyLeg{leg(models.Call, models.Long, 100, 1, 0.5, 0.2)},
	}, Market{Spot: 100}))

	deep := &models.Strategy{
		Family: models.FamilyCreditVertical, Spot: 1000,
		Legs: []models.StrategyLeg{
			leg(models.Put, models.Short, 500, 0.1, -0.0001, 0.5),
			leg(models.Put, models.Long, 450, 0.05, -0.00005, 0.2),
		},
	}
	p := e.Estimate(deep, Market{Spot: 1000, DTE: 30})
	assert.Equal(t, DefaultConfig().Max, p)

	for _, delta := range []float64{-1, -0.999, -0.5, -0.01, 0} {
		s := &models.Strategy{
			Family: models.FamilyCreditVertical, Spot: 1000,
			Legs:   []models.StrategyLeg{leg(models.Put, models.Short, 950, 5, delta, 0.2)},
		}
		p := e.Estimate(s, Market{Spot: 1000, DTE: 30})
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}
