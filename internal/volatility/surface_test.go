package volatility

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

var testExpiry = time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)

// knownSmile is IV as a quadratic in centred moneyness.
func knownSmile(m float64) float64 {
	x := m - 1
	return 0.20 - 0.30*x + 0.50*x*x
}

func smileChain(putStrikes, callStrikes []float64, oi int64) *models.OptionChain {
	chain := &models.OptionChain{Symbol: "TEST", Spot: 1000, Expiry: testExpiry}
	for _, k := range putStrikes {
		chain.Quotes = append(chain.Quotes, models.OptionQuote{
			Strike: k, Type: models.Put, Expiry: testExpiry, IV: knownSmile(k / 1000), OpenInterest: oi,
		})
	}
	for _, k := range callStrikes {
		chain.Quotes = append(chain.Quotes, models.OptionQuote{
			Strike: k, Type: models.Call, Expiry: testExpiry, IV: knownSmile(k / 1000), OpenInterest: oi,
		})
	}
	return chain
}

func newTestFitter() *Fitter {
	return NewFitter(DefaultConfig(), zerolog.Nop())
}

func TestFit_QuadraticRecoversKnownSmile(t *testing.T) {
	chain := smileChain(
		[]float64{850, 880, 910, 940, 970, 1000},
		[]float64{1000, 1030, 1060, 1090, 1120, 1150},
		500,
	)
	s := newTestFitter().Fit(chain)
	p := s.Params(testExpiry)

	assert.Equal(t, QualityFitted, p.Quality)
	assert.InDelta(t, 0.20, p.ATMIV, 1e-9)
	assert.InDelta(t, 0.175-0.235, p.RiskReversal, 1e-9)
	assert.InDelta(t, 0.005, p.Butterfly, 1e-9)
	assert.InDelta(t, 0.235/0.20-1, p.PutSkew, 1e-9)
	assert.InDelta(t, 0.175/0.20-1, p.CallSkew, 1e-9)
	assert.InDelta(t, 0.005/0.20, p.Curvature, 1e-9)

	iv := s.SmileAdjustedIV(900, 1000, testExpiry, models.Put, 0.20)
	assert.InDelta(t, 0.235, iv, 1e-9)
}

func TestFit_LinearWithFourPoints(t *testing.T) {
	chain := smileChain(
		[]float64{940, 960, 980, 1000},
		[]float64{1000, 1020, 1040, 1060},
		50,
	)
	p := newTestFitter().Fit(chain).Params(testExpiry)
	assert.Equal(t, QualityFitted, p.Quality)
	assert.Equal(t, 4, p.PutPoints)
	assert.Equal(t, 4, p.CallPoints)
	assert.InDelta(t, 0.20, p.ATMIV, 0.01)
}

func TestFit_FallbackProgression(t *testing.T) {
	tests := []struct {
		name    string
		chain   *models.OptionChain
		quality Quality
	}{
		{
			name:    "three points per side uses default",
			chain:   smileChain([]float64{950, 975, 1000}, []float64{1000, 1025, 1050}, 100),
			quality: QualityDefault,
		},
		{
			name:    "no open interest uses default",
			chain:   smileChain([]float64{850, 900, 950, 1000, 1050}, []float64{950, 1000, 1050, 1100, 1150}, 0),
			quality: QualityDefault,
		},
		{
			name:    "one side fitted is partial",
			chain:   smileChain([]float64{850, 900, 950, 1000, 1025}, []float64{1000, 1050}, 100),
			quality: QualityPartial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestFitter().Fit(tt.chain).Params(testExpiry)
			assert.Equal(t, tt.quality, p.Quality)
			assert.Greater(t, p.ATMIV, 0.0)
		})
	}
}

func TestFit_DefaultSmileShape(t *testing.T) {
	chain := smileChain([]float64{1000}, []float64{1000}, 0)
	s := newTestFitter().Fit(chain)
	atm := s.ATMIV(testExpiry)
	assert.InDelta(t, 0.20, atm, 1e-9)

	tests := []struct {
		strike float64
		typ    models.OptionType
		mult   float64
	}{
		{900, models.Put, 1.15},
		{800, models.Put, 1.25},
		{1100, models.Call, 1.08},
		{1200, models.Call, 1.12},
		{1000, models.Call, 1.00},
	}
	for _, tt := range tests {
		got := s.SmileAdjustedIV(tt.strike, 1000, testExpiry, tt.typ, 0.30)
		assert.InDelta(t, 0.30*tt.mult, got, 1e-9, "strike %v", tt.strike)
	}
}

func TestFitFromChain_EmptyNeverFails(t *testing.T) {
	p := newTestFitter().FitFromChain(nil, 0)
	assert.Equal(t, QualityDefault, p.Quality)
	assert.InDelta(t, DefaultConfig().DefaultATMIV, p.ATMIV, 1e-12)
}

func TestSmileAdjustedIV_FloorInvariant(t *testing.T) {
	surfaces := []*Surface{
		newTestFitter().Fit(smileChain([]float64{850, 900, 950, 1000, 1050}, []float64{950, 1000, 1050, 1100, 1150}, 10)),
		newTestFitter().Fit(smileChain(nil, nil, 0)),
		newTestFitter().Fit(nil),
	}
	bases := []float64{-1, 0, 1e-9, 0.2, math.NaN(), math.Inf(1)}
	for _, s := range surfaces {
		for strike := 1.0; strike <= 3000; strike += 37 {
			for _, typ := range []models.OptionType{models.Call, models.Put} {
				for _, base := range bases {
					iv := s.SmileAdjustedIV(strike, 1000, testExpiry, typ, base)
					require.False(t, math.IsNaN(iv), "NaN at strike %v base %v", strike, base)
					require.GreaterOrEqual(t, iv, DefaultConfig().IVFloor, "below floor at strike %v base %v", strike, base)
				}
			}
		}
	}
}

func TestSurface_NearestExpiryLookup(t *testing.T) {
	s := newTestFitter().Fit(smileChain(
		[]float64{850, 880, 910, 940, 970, 1000},
		[]float64{1000, 1030, 1060, 1090, 1120, 1150},
		500,
	))
	p := s.Params(testExpiry.AddDate(0, 0, 3))
	assert.Equal(t, QualityFitted, p.Quality)
	assert.InDelta(t, 0.20, p.ATMIV, 1e-9)

	risk := s.SmileRisk(testExpiry)
	assert.InDelta(t, 0.235, risk.PutWingIV, 1e-9)
	assert.InDelta(t, 0.175, risk.CallWingIV, 1e-9)
	assert.InDelta(t, 0.235, s.WingVolatility(testExpiry, 0.90, models.Put), 1e-9)
}

func TestIVRankAndPercentile(t *testing.T) {
	history := []float64{0.10, 0.15, 0.20, 0.25, 0.30}
	assert.InDelta(t, 0.5, IVRank(0.20, history), 1e-12)
	assert.Equal(t, 1.0, IVRank(0.50, history))
	assert.Equal(t, 0.0, IVRank(0.05, history))
	assert.Equal(t, 0.5, IVRank(0.20, nil))
	assert.Equal(t, 0.5, IVRank(0.20, []float64{0.2, 0.2}))

	assert.InDelta(t, 0.4, IVPercentile(0.20, history), 1e-12)
	assert.Equal(t, 0.5, IVPercentile(0.20, nil))
}

func TestPolyfit(t *testing.T) {
	xs := []float64{-2, -1, 0, 1, 2}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 1 + 2*x + 3*x*x
	}
	coef, err := polyfit(xs, ys, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, coef, 1e-9)
	assert.InDelta(t, 1+2*3+3*9, polyval(coef, 3), 1e-9)

	_, err = polyfit([]float64{1, 1, 1}, []float64{1, 2, 3}, 1)
	assert.ErrorIs(t, err, errSingular)
}
