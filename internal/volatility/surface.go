// Package volatility fits an implied volatility smile from an options chain
// snapshot and serves smile-adjusted IVs and smile risk metrics.
package volatility

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// Quality is the provenance tag of a fitted smile.
type Quality string

const (
	// QualityFitted means both wings were fitted from chain data
	QualityFitted Quality = "fitted"
	// QualityPartial means one wing was fitted and the other uses the default shape
	QualityPartial Quality = "partial"
	// QualityDefault means neither wing had enough data
	QualityDefault Quality = "default"
)

// SmilePoint is one knot of the default smile: IV multiplier relative to ATM at a moneyness.
type SmilePoint struct {
	Moneyness  float64 `yaml:"moneyness"`
	Multiplier float64 `yaml:"multiplier"`
}

// Config controls smile fitting.
type Config struct {
	IVFloor            float64      `yaml:"iv_floor"`
	DefaultATMIV       float64      `yaml:"default_atm_iv"`
	MinPointsPerSide   int          `yaml:"min_points_per_side"`
	MinPointsQuadratic int          `yaml:"min_points_quadratic"`
	PutWingMoneyness   float64      `yaml:"put_wing_moneyness"`
	CallWingMoneyness  float64      `yaml:"call_wing_moneyness"`
	MaxMultiplier      float64      `yaml:"max_multiplier"`
	DefaultSmile       []SmilePoint `yaml:"default_smile"`
}

// DefaultConfig returns the market-calibrated defaults: puts carry +15% IV at
// 90% moneyness and +25% at 80%, calls +8% at 110% and +12% at 120%.
func DefaultConfig() Config {
	return Config{
		IVFloor:            0.01,
		DefaultATMIV:       0.20,
		MinPointsPerSide:   4,
		MinPointsQuadratic: 5,
		PutWingMoneyness:   0.90,
		CallWingMoneyness:  1.10,
		MaxMultiplier:      2.0,
		DefaultSmile: []SmilePoint{
			{Moneyness: 0.80, Multiplier: 1.25},
			{Moneyness: 0.90, Multiplier: 1.15},
			{Moneyness: 1.00, Multiplier: 1.00},
			{Moneyness: 1.10, Multiplier: 1.08},
			{Moneyness: 1.20, Multiplier: 1.12},
		},
	}
}

// SmileParameters summarises the smile of one expiry.
type SmileParameters struct {
	Expiry       time.Time `json:"expiry"`
	ATMIV        float64   `json:"atm_iv"`
	PutSkew      float64   `json:"put_skew"`  // put wing IV / ATM IV - 1
	CallSkew     float64   `json:"call_skew"` // call wing IV / ATM IV - 1
	Curvature    float64   `json:"curvature"` // butterfly / ATM IV
	RiskReversal float64   `json:"risk_reversal"`
	Butterfly    float64   `json:"butterfly"`
	PutPoints    int       `json:"put_points"`
	CallPoints   int       `json:"call_points"`
	Quality      Quality   `json:"quality"`
}

// SmileRisk is the smile shape as consumed by ranking policy.
type SmileRisk struct {
	RiskReversal float64 `json:"risk_reversal"`
	Butterfly    float64 `json:"butterfly"`
	PutWingIV    float64 `json:"put_wing_iv"`
	CallWingIV   float64 `json:"call_wing_iv"`
	Quality      Quality `json:"quality"`
}

type sideCurve struct {
	coef       []float64 // IV as polynomial in (moneyness - 1)
	minX, maxX float64
}

func (c *sideCurve) fitted() bool { return c != nil && len(c.coef) > 0 }

func (c *sideCurve) eval(moneyness float64) float64 {
	x := math.Min(math.Max(moneyness-1, c.minX), c.maxX)
	return polyval(c.coef, x)
}

type smile struct {
	params SmileParameters
	put    *sideCurve
	call   *sideCurve
}

// Surface is an immutable set of per-expiry smiles for one chain snapshot.
// It is safe for concurrent readers.
type Surface struct {
	cfg    Config
	spot   float64
	smiles map[string]*smile
	keys   []time.Time
}

// Fitter builds Surfaces.
type Fitter struct {
	cfg    Config
	logger zerolog.Logger
}

// NewFitter creates a Fitter. Zero-valued config fields take their defaults.
func NewFitter(cfg Config, logger zerolog.Logger) *Fitter {
	return &Fitter{cfg: cfg.withDefaults(), logger: logger}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IVFloor <= 0 {
		c.IVFloor = d.IVFloor
	}
	if c.DefaultATMIV <= 0 {
		c.DefaultATMIV = d.DefaultATMIV
	}
	if c.MinPointsPerSide <= 0 {
		c.MinPointsPerSide = d.MinPointsPerSide
	}
	if c.MinPointsQuadratic <= 0 {
		c.MinPointsQuadratic = d.MinPointsQuadratic
	}
	if c.PutWingMoneyness <= 0 {
		c.PutWingMoneyness = d.PutWingMoneyness
	}
	if c.CallWingMoneyness <= 0 {
		c.CallWingMoneyness = d.CallWingMoneyness
	}
	if c.MaxMultiplier <= 1 {
		c.MaxMultiplier = d.MaxMultiplier
	}
	if len(c.DefaultSmile) < 2 {
		c.DefaultSmile = d.DefaultSmile
	}
	pts := append([]SmilePoint(nil), c.DefaultSmile...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Moneyness < pts[j].Moneyness })
	c.DefaultSmile = pts
	return c
}

func expiryKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Fit fits one smile per expiry found in the chain. It never fails: missing
// or sparse data degrades to the default smile and is tagged in Quality.
func (f *Fitter) Fit(chain *models.OptionChain) *Surface {
	s := &Surface{cfg: f.cfg, smiles: make(map[string]*smile)}
	if chain == nil {
		return s
	}
	s.spot = chain.Spot

	groups := make(map[string][]models.OptionQuote)
	expiries := make(map[string]time.Time)
	for _, q := range chain.Quotes {
		exp := q.Expiry
		if exp.IsZero() {
			exp = chain.Expiry
		}
		k := expiryKey(exp)
		groups[k] = append(groups[k], q)
		expiries[k] = exp
	}

	for k, quotes := range groups {
		sm := f.fitExpiry(quotes, chain.Spot, expiries[k])
		s.smiles[k] = sm
		s.keys = append(s.keys, expiries[k])
		if sm.params.Quality != QualityFitted {
			f.logger.Warn().
				Str("symbol", chain.Symbol).
				Str("expiry", k).
				Str("quality", string(sm.params.Quality)).
				Int("put_points", sm.params.PutPoints).
				Int("call_points", sm.params.CallPoints).
				Msg("insufficient chain data for smile fit, using default wing")
		}
	}
	sort.Slice(s.keys, func(i, j int) bool { return s.keys[i].Before(s.keys[j]) })
	return s
}

// FitFromChain fits a single-expiry quote set and returns its smile parameters.
func (f *Fitter) FitFromChain(quotes []models.OptionQuote, spot float64) SmileParameters {
	var exp time.Time
	for _, q := range quotes {
		if !q.Expiry.IsZero() {
			exp = q.Expiry
			break
		}
	}
	return f.fitExpiry(quotes, spot, exp).params
}

func (f *Fitter) fitExpiry(quotes []models.OptionQuote, spot float64, expiry time.Time) *smile {
	sm := &smile{params: SmileParameters{Expiry: expiry}}
	if spot <= 0 || math.IsNaN(spot) {
		sm.params.ATMIV = f.cfg.DefaultATMIV
		sm.params.Quality = QualityDefault
		f.fillMetrics(sm)
		return sm
	}

	var putX, putY, callX, callY []float64
	for _, q := range quotes {
		if !q.HasIV() || q.OpenInterest <= 0 || q.Strike <= 0 {
			continue
		}
		x := q.Strike/spot - 1
		switch q.Type {
		case models.Put:
			putX, putY = append(putX, x), append(putY, q.IV)
		case models.Call:
			callX, callY = append(callX, x), append(callY, q.IV)
		}
	}
	sm.params.PutPoints = len(putX)
	sm.params.CallPoints = len(callX)
	sm.put = f.fitSide(putX, putY)
	sm.call = f.fitSide(callX, callY)

	var atm []float64
	if sm.put.fitted() {
		atm = append(atm, sm.put.eval(1))
	}
	if sm.call.fitted() {
		atm = append(atm, sm.call.eval(1))
	}
	switch len(atm) {
	case 2:
		sm.params.Quality = QualityFitted
		sm.params.ATMIV = (atm[0] + atm[1]) / 2
	case 1:
		sm.params.Quality = QualityPartial
		sm.params.ATMIV = atm[0]
	default:
		sm.params.Quality = QualityDefault
		sm.params.ATMIV = nearestATMIV(quotes, spot)
	}
	if sm.params.ATMIV <= 0 || math.IsNaN(sm.params.ATMIV) {
		sm.params.ATMIV = f.cfg.DefaultATMIV
	}
	f.fillMetrics(sm)
	return sm
}

func (f *Fitter) fitSide(xs, ys []float64) *sideCurve {
	if len(xs) < f.cfg.MinPointsPerSide {
		return nil
	}
	minX, maxX := xs[0], xs[0]
	for _, x := range xs {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
	}
	degrees := []int{1}
	if len(xs) >= f.cfg.MinPointsQuadratic {
		degrees = []int{2, 1}
	}
	for _, deg := range degrees {
		coef, err := polyfit(xs, ys, deg)
		if err != nil {
			continue
		}
		c := &sideCurve{coef: coef, minX: minX, maxX: maxX}
		if c.positiveOn(xs) {
			return c
		}
	}
	return nil
}

// positiveOn rejects fits that go non-positive at ATM or at any sample point.
func (c *sideCurve) positiveOn(xs []float64) bool {
	if polyval(c.coef, math.Min(math.Max(0, c.minX), c.maxX)) <= 0 {
		return false
	}
	for _, x := range xs {
		if polyval(c.coef, x) <= 0 {
			return false
		}
	}
	return true
}

// nearestATMIV averages the IVs of the rows closest to spot.
func nearestATMIV(quotes []models.OptionQuote, spot float64) float64 {
	best := math.MaxFloat64
	for _, q := range quotes {
		if q.HasIV() {
			best = math.Min(best, math.Abs(q.Strike-spot))
		}
	}
	sum, n := 0.0, 0
	for _, q := range quotes {
		if q.HasIV() && math.Abs(q.Strike-spot) == best {
			sum += q.IV
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (f *Fitter) fillMetrics(sm *smile) {
	atm := sm.params.ATMIV
	putWing := atm * multiplier(f.cfg, sm, f.cfg.PutWingMoneyness, models.Put)
	callWing := atm * multiplier(f.cfg, sm, f.cfg.CallWingMoneyness, models.Call)
	sm.params.RiskReversal = callWing - putWing
	sm.params.Butterfly = (putWing+callWing)/2 - atm
	sm.params.PutSkew = putWing/atm - 1
	sm.params.CallSkew = callWing/atm - 1
	sm.params.Curvature = sm.params.Butterfly / atm
}

// multiplier returns IV(moneyness)/IV(ATM) for one side of a smile.
func multiplier(cfg Config, sm *smile, moneyness float64, t models.OptionType) float64 {
	curve := sm.call
	if t == models.Put {
		curve = sm.put
	}
	var m float64
	if curve.fitted() {
		at := curve.eval(1)
		if at > 0 {
			m = curve.eval(moneyness) / at
		}
	}
	if m <= 0 || math.IsNaN(m) {
		m = defaultMultiplier(cfg.DefaultSmile, moneyness)
	}
	return math.Min(m, cfg.MaxMultiplier)
}

// defaultMultiplier linearly interpolates the default smile, extrapolating
// with the end segment slopes.
func defaultMultiplier(pts []SmilePoint, moneyness float64) float64 {
	if len(pts) == 0 {
		return 1
	}
	if len(pts) == 1 {
		return pts[0].Multiplier
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Moneyness >= moneyness })
	switch {
	case i == 0:
		i = 1
	case i == len(pts):
		i = len(pts) - 1
	}
	a, b := pts[i-1], pts[i]
	if b.Moneyness == a.Moneyness {
		return a.Multiplier
	}
	w := (moneyness - a.Moneyness) / (b.Moneyness - a.Moneyness)
	return a.Multiplier + w*(b.Multiplier-a.Multiplier)
}

func (s *Surface) lookup(expiry time.Time) *smile {
	if sm, ok := s.smiles[expiryKey(expiry)]; ok {
		return sm
	}
	var best *smile
	bestDiff := time.Duration(math.MaxInt64)
	for _, k := range s.keys {
		d := k.Sub(expiry)
		if d < 0 {
			d = -d
		}
		if d < bestDiff {
			bestDiff = d
			best = s.smiles[expiryKey(k)]
		}
	}
	if best == nil {
		best = &smile{params: SmileParameters{Expiry: expiry, ATMIV: s.cfg.DefaultATMIV, Quality: QualityDefault}}
		f := Fitter{cfg: s.cfg}
		f.fillMetrics(best)
	}
	return best
}

// Spot returns the spot price the surface was fitted against.
func (s *Surface) Spot() float64 {
	return s.spot
}

// Params returns the smile parameters for an expiry, using the nearest fitted
// expiry when there is no exact match.
func (s *Surface) Params(expiry time.Time) SmileParameters {
	return s.lookup(expiry).params
}

// ATMIV returns the at-the-money IV for an expiry.
func (s *Surface) ATMIV(expiry time.Time) float64 {
	return s.lookup(expiry).params.ATMIV
}

// SmileAdjustedIV applies the smile to baseIV at the strike's moneyness. A
// non-positive baseIV is replaced by the expiry's ATM IV. The result is never
// below the configured floor.
func (s *Surface) SmileAdjustedIV(strike, spot float64, expiry time.Time, t models.OptionType, baseIV float64) float64 {
	sm := s.lookup(expiry)
	if baseIV <= 0 || math.IsNaN(baseIV) || math.IsInf(baseIV, 0) {
		baseIV = sm.params.ATMIV
	}
	if baseIV <= 0 || math.IsNaN(baseIV) {
		baseIV = s.cfg.DefaultATMIV
	}
	if spot <= 0 || math.IsNaN(spot) {
		spot = s.spot
	}
	m := 1.0
	if spot > 0 && strike > 0 {
		m = multiplier(s.cfg, sm, strike/spot, t)
	}
	iv := baseIV * m
	if iv < s.cfg.IVFloor || math.IsNaN(iv) {
		return s.cfg.IVFloor
	}
	return iv
}

// WingVolatility returns the smile IV at a moneyness for an expiry.
func (s *Surface) WingVolatility(expiry time.Time, moneyness float64, t models.OptionType) float64 {
	return s.SmileAdjustedIV(moneyness*s.spot, s.spot, expiry, t, 0)
}

// SmileRisk reports skew and curvature for ranking policy.
func (s *Surface) SmileRisk(expiry time.Time) SmileRisk {
	p := s.Params(expiry)
	return SmileRisk{
		RiskReversal: p.RiskReversal,
		Butterfly:    p.Butterfly,
		PutWingIV:    p.ATMIV * (1 + p.PutSkew),
		CallWingIV:   p.ATMIV * (1 + p.CallSkew),
		Quality:      p.Quality,
	}
}
