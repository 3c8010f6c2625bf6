// Package ranking orders the strategies built for a symbol.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/strike_engine/internal/engine"
	"github.com/eddiefleurent/strike_engine/internal/models"
)

// Ranked is a strategy with its ranking score. Rank starts at 1.
type Ranked struct {
	Rank         int              `json:"rank"`
	Score        float64          `json:"score"`
	RewardToRisk float64          `json:"reward_to_risk"`
	Strategy     *models.Strategy `json:"strategy"`
}

// Rejection records why a built strategy was not ranked.
type Rejection struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Ranker orders an analysis's strategies, best first.
type Ranker interface {
	Rank(a *engine.Analysis) []Ranked
}

// Config tunes SmileAwareRanker.
type Config struct {
	// MaxButterfly is the wing premium over ATM, in vol points, above which
	// short-wing structures are rejected.
	MaxButterfly float64 `yaml:"max_butterfly"`
	// MaxRiskReversal bounds |call wing IV - put wing IV| for the same structures.
	MaxRiskReversal float64 `yaml:"max_risk_reversal"`
	MinPoP          float64 `yaml:"min_pop"`
	// UnboundedReward is the reward/risk credited to strategies with unlimited upside.
	UnboundedReward float64 `yaml:"unbounded_reward"`
	// TopN keeps only the best N results; 0 keeps all.
	TopN int `yaml:"top_n"`
}

// DefaultConfig returns the ranking defaults.
func DefaultConfig() Config {
	return Config{
		MaxButterfly:    0.05,
		MaxRiskReversal: 0.10,
		MinPoP:          0.25,
		UnboundedReward: 2.0,
	}
}

// SmileAwareRanker scores by PoP × reward/risk after filtering out range
// structures the current smile makes unattractive.
type SmileAwareRanker struct {
	cfg Config
}

// NewSmileAwareRanker creates a SmileAwareRanker.
func NewSmileAwareRanker(cfg Config) *SmileAwareRanker {
	return &SmileAwareRanker{cfg: cfg}
}

// Rank returns the accepted strategies, best first.
func (r *SmileAwareRanker) Rank(a *engine.Analysis) []Ranked {
	ranked, _ := r.Evaluate(a)
	return ranked
}

// Evaluate returns the ranked strategies and the ones filtered out.
func (r *SmileAwareRanker) Evaluate(a *engine.Analysis) ([]Ranked, []Rejection) {
	if a == nil {
		return nil, nil
	}
	var ranked []Ranked
	var rejected []Rejection
	for _, s := range a.Strategies {
		if s == nil {
			continue
		}
		if reason := r.reject(s, a); reason != "" {
			rejected = append(rejected, Rejection{Strategy: s.Name, Reason: reason})
			continue
		}
		rr := r.rewardToRisk(s)
		ranked = append(ranked, Ranked{
			Score:        s.ProbabilityOfProfit * rr,
			RewardToRisk: rr,
			Strategy:     s,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Strategy.ProbabilityOfProfit > ranked[j].Strategy.ProbabilityOfProfit
	})
	if r.cfg.TopN > 0 && len(ranked) > r.cfg.TopN {
		ranked = ranked[:r.cfg.TopN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, rejected
}

func (r *SmileAwareRanker) reject(s *models.Strategy, a *engine.Analysis) string {
	if s.ProbabilityOfProfit < r.cfg.MinPoP {
		return fmt.Sprintf("probability of profit %.2f below %.2f", s.ProbabilityOfProfit, r.cfg.MinPoP)
	}
	if s.Family != models.FamilyCondor && s.Family != models.FamilyButterfly {
		return ""
	}
	risk := a.SmileRisk
	if r.cfg.MaxButterfly > 0 && risk.Butterfly > r.cfg.MaxButterfly {
		return fmt.Sprintf("smile butterfly %.3f above %.3f", risk.Butterfly, r.cfg.MaxButterfly)
	}
	if r.cfg.MaxRiskReversal > 0 && math.Abs(risk.RiskReversal) > r.cfg.MaxRiskReversal {
		return fmt.Sprintf("risk reversal %.3f beyond ±%.3f", risk.RiskReversal, r.cfg.MaxRiskReversal)
	}
	return ""
}

func (r *SmileAwareRanker) rewardToRisk(s *models.Strategy) float64 {
	switch {
	case models.IsUnbounded(s.MaxLoss):
		return 0
	case models.IsUnbounded(s.MaxProfit):
		return r.cfg.UnboundedReward
	default:
		return s.RewardToRisk()
	}
}
