package expectedmove

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

func TestCalculate_StraddleScenario(t *testing.T) {
	em := NewCalculator(zerolog.Nop()).Calculate(45, 40, 1000, 30)

	assert.InDelta(t, 85, em.StraddlePrice, 1e-9)
	assert.InDelta(t, 68, em.OneSD, 1e-9)
	assert.InDelta(t, 136, em.TwoSD, 1e-9)
	assert.InDelta(t, 12.4, em.Daily, 0.05)
	assert.InDelta(t, 1068, em.Upper1SD, 1e-9)
	assert.InDelta(t, 932, em.Lower1SD, 1e-9)
	assert.InDelta(t, 1136, em.Upper2SD, 1e-9)
	assert.InDelta(t, 864, em.Lower2SD, 1e-9)
	assert.Equal(t, SourceStraddle, em.Source)
}

func TestCalculate_Monotonic(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	for _, call := range []float64{-5, 0, 0.01, 1, 45, 500} {
		for _, put := range []float64{-5, 0, 0.01, 2, 40, 800} {
			for _, dte := range []int{-3, 0, 1, 7, 45} {
				em := calc.Calculate(call, put, 1000, dte)
				assert.GreaterOrEqual(t, em.OneSD, 0.0)
				assert.LessOrEqual(t, em.OneSD, em.TwoSD)
				assert.False(t, math.IsNaN(em.Daily) || math.IsInf(em.Daily, 0))
				assert.GreaterOrEqual(t, em.Lower2SD, 0.0)
			}
		}
	}
}

func TestCalculate_NonPositiveDTE(t *testing.T) {
	em := NewCalculator(zerolog.Nop()).Calculate(45, 40, 1000, 0)
	assert.Equal(t, 1, em.DTE)
	assert.InDelta(t, em.OneSD, em.Daily, 1e-12)
}

func TestFromChain(t *testing.T) {
	asOf := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	expiry := asOf.AddDate(0, 0, 30)

	t.Run("uses nearest two-sided strike", func(t *testing.T) {
		chain := &models.OptionChain{
			Symbol: "TEST", Spot: 1003, AsOf: asOf, Expiry: expiry,
			Quotes: []models.OptionQuote{
				{Strike: 1000, Type: models.Call, Bid: 44, Ask: 46},
				{Strike: 1000, Type: models.Put, Bid: 39, Ask: 41},
				{Strike: 1010, Type: models.Call, Bid: 39, Ask: 41},
				{Strike: 990, Type: models.Put, Last: 36},
			},
		}
		em := NewCalculator(zerolog.Nop()).FromChain(chain, nil)
		assert.Equal(t, 1000.0, em.ATMStrike)
		assert.InDelta(t, 85, em.StraddlePrice, 1e-9)
		assert.Equal(t, 30, em.DTE)
	})

	t.Run("falls back to surface ATM IV", func(t *testing.T) {
		chain := &models.OptionChain{
			Symbol: "TEST", Spot: 1000, AsOf: asOf, Expiry: expiry,
			Quotes: []models.OptionQuote{
				{Strike: 1000, Type: models.Call, IV: 0.25},
				{Strike: 1000, Type: models.Put, IV: 0.25},
			},
		}
		surface := volatility.NewFitter(volatility.DefaultConfig(), zerolog.Nop()).Fit(chain)
		em := NewCalculator(zerolog.Nop()).FromChain(chain, surface)
		assert.Equal(t, SourceSurface, em.Source)
		assert.InDelta(t, 1000*0.25*math.Sqrt(30.0/365.0), em.OneSD, 1e-9)
		assert.LessOrEqual(t, em.OneSD, em.TwoSD)
	})
}
