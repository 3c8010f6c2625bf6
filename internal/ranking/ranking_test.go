package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/strike_engine/internal/engine"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/volatility"
)

func built(name string, family models.Family, pop, profit, loss float64) *models.Strategy {
	return &models.Strategy{Name: name, Family: family, ProbabilityOfProfit: pop, MaxProfit: profit, MaxLoss: loss}
}

func TestSmileAwareRanker_OrdersByExpectedEdge(t *testing.T) {
	a := &engine.Analysis{
		SmileRisk: volatility.SmileRisk{Butterfly: 0.01, RiskReversal: -0.04},
		Strategies: []*models.Strategy{
			built("bull_put_spread", models.FamilyCreditVertical, 0.70, 150, 350),
			built("iron_condor", models.FamilyCondor, 0.60, 200, 300),
			built("long_call", models.FamilySingle, 0.35, models.Unbounded, 500),
			built("short_strangle", models.FamilyStrangle, 0.80, 300, models.Unbounded),
		},
	}
	ranked := NewSmileAwareRanker(DefaultConfig()).Rank(a)
	require.Len(t, ranked, 4)

	names := []string{}
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
		names = append(names, r.Strategy.Name)
	}
	assert.Equal(t, []string{"long_call", "iron_condor", "bull_put_spread", "short_strangle"}, names)
	assert.InDelta(t, 0.40, ranked[1].Score, 1e-12)
	assert.InDelta(t, 2.0, ranked[0].RewardToRisk, 1e-12)
	assert.Zero(t, ranked[3].Score)
}

func TestSmileAwareRanker_SmileFilters(t *testing.T) {
	strategies := []*models.Strategy{
		built("iron_condor", models.FamilyCondor, 0.6, 200, 300),
		built("iron_butterfly", models.FamilyButterfly, 0.4, 400, 100),
		built("bull_put_spread", models.FamilyCreditVertical, 0.7, 150, 350),
	}

	tests := []struct {
		name     string
		risk     volatility.SmileRisk
		accepted []string
	}{
		{"calm smile", volatility.SmileRisk{Butterfly: 0.02, RiskReversal: -0.05}, []string{"iron_butterfly", "iron_condor", "bull_put_spread"}},
		{"rich wings", volatility.SmileRisk{Butterfly: 0.06}, []string{"bull_put_spread"}},
		{"steep skew", volatility.SmileRisk{Butterfly: 0.01, RiskReversal: -0.15}, []string{"bull_put_spread"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked, rejected := NewSmileAwareRanker(DefaultConfig()).Evaluate(&engine.Analysis{SmileRisk: tt.risk, Strategies: strategies})
			var names []string
			for _, r := range ranked {
				names = append(names, r.Strategy.Name)
			}
			assert.Equal(t, tt.accepted, names)
			assert.Len(t, rejected, len(strategies)-len(tt.accepted))
			for _, rej := range rejected {
				assert.NotEmpty(t, rej.Reason)
			}
		})
	}
}

func TestSmileAwareRanker_PoPFloorAndTopN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 1
	a := &engine.Analysis{Strategies: []*models.Strategy{
		built("long_put", models.FamilySingle, 0.10, 900, 100),
		built("bear_call_spread", models.FamilyCreditVertical, 0.65, 100, 400),
		built("bear_put_spread", models.FamilyDebitVertical, 0.45, 300, 200),
		nil,
	}}
	ranked, rejected := NewSmileAwareRanker(cfg).Evaluate(a)
	require.Len(t, ranked, 1)
	assert.Equal(t, "bear_put_spread", ranked[0].Strategy.Name)
	require.Len(t, rejected, 1)
	assert.Equal(t, "long_put", rejected[0].Strategy)
}

func TestSmileAwareRanker_Empty(t *testing.T) {
	r := NewSmileAwareRanker(DefaultConfig())
	assert.Empty(t, r.Rank(nil))
	assert.Empty(t, r.Rank(&engine.Analysis{}))
}
