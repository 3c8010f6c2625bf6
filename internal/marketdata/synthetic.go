package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/pricing"
	"github.com/eddiefleurent/strike_engine/internal/util"
)

// SyntheticConfig shapes the chains generated by SyntheticProvider.
type SyntheticConfig struct {
	Seed        uint64             `yaml:"seed"`
	Spots       map[string]float64 `yaml:"spots"`
	DefaultSpot float64            `yaml:"default_spot"`
	DTE         int                `yaml:"dte"`
	// StrikeRange is the half-width of the strike ladder as a fraction of spot.
	StrikeRange float64 `yaml:"strike_range"`
	// StrikeStep of 0 picks a step from the spot level.
	StrikeStep   float64 `yaml:"strike_step"`
	ATMIV        float64 `yaml:"atm_iv"`
	Skew         float64 `yaml:"skew"`
	Curvature    float64 `yaml:"curvature"`
	SpreadPct    float64 `yaml:"spread_pct"`
	Tick         float64 `yaml:"tick"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	// MissingGreeksRatio is the share of rows served without Greeks.
	MissingGreeksRatio float64 `yaml:"missing_greeks_ratio"`
	HistoryDays        int     `yaml:"history_days"`
	LotSize            int     `yaml:"lot_size"`
}

// DefaultSyntheticConfig returns a liquid, mildly skewed equity-index-like chain.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:               1,
		DefaultSpot:        100,
		DTE:                30,
		StrikeRange:        0.25,
		ATMIV:              0.20,
		Skew:               -0.30,
		Curvature:          0.50,
		SpreadPct:          0.04,
		Tick:               0.01,
		MissingGreeksRatio: 0.10,
		HistoryDays:        60,
		LotSize:            1,
	}
}

// SyntheticProvider generates Black-Scholes-consistent chains on a skewed
// smile. Output is deterministic per symbol, seed and calendar day.
type SyntheticProvider struct {
	cfg SyntheticConfig
	now func() time.Time
}

// NewSyntheticProvider creates a SyntheticProvider, filling zero fields from the defaults.
func NewSyntheticProvider(cfg SyntheticConfig) *SyntheticProvider {
	d := DefaultSyntheticConfig()
	if cfg.DefaultSpot <= 0 {
		cfg.DefaultSpot = d.DefaultSpot
	}
	if cfg.DTE <= 0 {
		cfg.DTE = d.DTE
	}
	if cfg.StrikeRange <= 0 {
		cfg.StrikeRange = d.StrikeRange
	}
	if cfg.ATMIV <= 0 {
		cfg.ATMIV = d.ATMIV
	}
	if cfg.SpreadPct <= 0 {
		cfg.SpreadPct = d.SpreadPct
	}
	if cfg.Tick <= 0 {
		cfg.Tick = d.Tick
	}
	if cfg.HistoryDays < 0 {
		cfg.HistoryDays = 0
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = d.LotSize
	}
	return &SyntheticProvider{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the provider that reads time from now.
func (p *SyntheticProvider) WithClock(now func() time.Time) *SyntheticProvider {
	cp := *p
	cp.now = now
	return &cp
}

func (p *SyntheticProvider) rng(symbol string, day time.Time) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return rand.New(rand.NewPCG(p.cfg.Seed, h.Sum64()))
}

func strikeStep(spot float64) float64 {
	switch {
	case spot < 25:
		return 0.5
	case spot < 100:
		return 1
	case spot < 500:
		return 5
	default:
		return 10
	}
}

// smileIV is the generator's volatility at a moneyness.
func (p *SyntheticProvider) smileIV(atm, moneyness float64) float64 {
	x := moneyness - 1
	return math.Max(0.05, atm+p.cfg.Skew*x+p.cfg.Curvature*x*x)
}

// Snapshot returns a generated snapshot for symbol.
func (p *SyntheticProvider) Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("synthetic: %w", ErrSymbolNotFound)
	}

	asOf := p.now().UTC().Truncate(24 * time.Hour)
	expiry := asOf.AddDate(0, 0, p.cfg.DTE)
	r := p.rng(symbol, asOf)

	spot, ok := p.cfg.Spots[symbol]
	if !ok || spot <= 0 {
		spot = p.cfg.DefaultSpot * (0.5 + r.Float64())
	}
	spot = util.RoundToTick(spot, p.cfg.Tick)
	atm := p.cfg.ATMIV * (0.8 + 0.4*r.Float64())

	step := p.cfg.StrikeStep
	if step <= 0 {
		step = strikeStep(spot)
	}
	years := pricing.YearFraction(p.cfg.DTE)

	var quotes []models.OptionQuote
	for _, strike := range util.StrikeGrid(spot*(1-p.cfg.StrikeRange), spot*(1+p.cfg.StrikeRange), step) {
		if strike <= 0 {
			continue
		}
		m := strike / spot
		iv := p.smileIV(atm, m)
		// open interest concentrates near the money
		depth := math.Exp(-math.Pow((m-1)/0.08, 2))

		for _, t := range []models.OptionType{models.Put, models.Call} {
			in := pricing.Inputs{Type: t, Spot: spot, Strike: strike, Years: years, Vol: iv, Rate: p.cfg.RiskFreeRate}
			price := pricing.Price(in)
			half := math.Max(price*p.cfg.SpreadPct/2, p.cfg.Tick/2)

			q := models.OptionQuote{
				Strike:       strike,
				Type:         t,
				Expiry:       expiry,
				Last:         util.RoundToTick(price, p.cfg.Tick),
				Bid:          math.Max(0, util.FloorToTick(price-half, p.cfg.Tick)),
				Ask:          util.CeilToTick(price+half, p.cfg.Tick),
				IV:           iv,
				OpenInterest: int64(50 + 10000*depth*(0.5+r.Float64())),
				Volume:       int64(1 + 2000*depth*r.Float64()),
			}
			if r.Float64() >= p.cfg.MissingGreeksRatio {
				g := pricing.Greeks(in)
				q.Greeks = &g
			}
			quotes = append(quotes, q)
		}
	}

	history := make([]float64, p.cfg.HistoryDays)
	level := atm
	for i := range history {
		level = math.Max(0.05, level*(1+0.05*(r.Float64()-0.5)))
		history[i] = level
	}

	directions := []models.MarketDirection{models.Bullish, models.Bearish, models.Neutral}
	return &models.MarketSnapshot{
		Chain: models.OptionChain{
			Symbol: symbol,
			Spot:   spot,
			Expiry: expiry,
			AsOf:   asOf,
			Quotes: quotes,
		},
		IVHistory:  history,
		Direction:  directions[r.IntN(len(directions))],
		Confidence: 0.4 + 0.5*r.Float64(),
		LotSize:    p.cfg.LotSize,
	}, nil
}
