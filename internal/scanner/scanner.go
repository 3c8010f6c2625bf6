// Package scanner analyzes many symbols concurrently.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/strike_engine/internal/engine"
	"github.com/eddiefleurent/strike_engine/internal/marketdata"
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/ranking"
	"github.com/eddiefleurent/strike_engine/internal/storage"
)

// ErrSymbolTimeout marks a symbol whose analysis exceeded its deadline.
var ErrSymbolTimeout = errors.New("symbol analysis timed out")

// Config controls scan concurrency.
type Config struct {
	Workers       int           `yaml:"workers"`
	SymbolTimeout time.Duration `yaml:"symbol_timeout"`
	// HistoryDays of stored IV readings used for IV rank when a snapshot carries none.
	HistoryDays int `yaml:"history_days"`
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{Workers: 6, SymbolTimeout: 30 * time.Second, HistoryDays: 252}
}

// Result is the outcome for one symbol. Exactly one of Analysis and Err is set.
type Result struct {
	Symbol   string           `json:"symbol"`
	Analysis *engine.Analysis `json:"analysis,omitempty"`
	Ranked   []ranking.Ranked `json:"ranked,omitempty"`
	Err      error            `json:"-"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Report collects every symbol's Result for one scan.
type Report struct {
	RunID    string             `json:"run_id"`
	Started  time.Time          `json:"started"`
	Duration time.Duration      `json:"duration"`
	Results  map[string]*Result `json:"results"`
}

// Symbols returns the scanned symbols in sorted order.
func (r *Report) Symbols() []string {
	out := make([]string, 0, len(r.Results))
	for s := range r.Results {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Failures returns the error of every failed symbol.
func (r *Report) Failures() map[string]error {
	out := make(map[string]error)
	for s, res := range r.Results {
		if res.Err != nil {
			out[s] = res.Err
		}
	}
	return out
}

// Scanner runs the engine over a symbol universe with bounded concurrency.
type Scanner struct {
	provider marketdata.Provider
	engine   *engine.Engine
	ranker   ranking.Ranker
	store    storage.Interface
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Scanner. ranker and store may be nil.
func New(provider marketdata.Provider, eng *engine.Engine, ranker ranking.Ranker, store storage.Interface, cfg Config, logger zerolog.Logger) *Scanner {
	d := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.SymbolTimeout <= 0 {
		cfg.SymbolTimeout = d.SymbolTimeout
	}
	if cfg.HistoryDays < 0 {
		cfg.HistoryDays = 0
	}
	return &Scanner{
		provider: provider,
		engine:   eng,
		ranker:   ranker,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Scan analyzes every symbol. A symbol's failure is recorded in its Result
// and never stops the others. The error is non-nil only when ctx ended
// before the scan finished.
func (s *Scanner) Scan(ctx context.Context, symbols []string) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: s.now().UTC(),
		Results: make(map[string]*Result),
	}
	log := s.logger.With().Str("run_id", report.RunID).Logger()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for _, sym := range dedupe(symbols) {
		g.Go(func() error {
			res := s.scanSymbol(ctx, report.RunID, sym, log)
			mu.Lock()
			report.Results[sym] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = s.now().UTC().Sub(report.Started)

	failed := len(report.Failures())
	log.Info().
		Int("symbols", len(report.Results)).
		Int("failed", failed).
		Dur("elapsed", report.Duration).
		Msg("scan complete")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("scan interrupted: %w", err)
	}
	return report, nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (s *Scanner) scanSymbol(parent context.Context, runID, symbol string, log zerolog.Logger) *Result {
	start := time.Now()
	res := &Result{Symbol: symbol}
	fail := func(err error) *Result {
		res.Err = err
		res.Error = err.Error()
		res.Duration = time.Since(start)
		log.Warn().Str("symbol", symbol).Err(err).Msg("symbol failed")
		return res
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.SymbolTimeout)
	defer cancel()

	snap, err := s.provider.Snapshot(ctx, symbol)
	if err != nil {
		return fail(s.classify(ctx, fmt.Errorf("snapshot: %w", err)))
	}
	snap = s.withHistory(snap, log)

	a, err := s.engine.Analyze(ctx, snap)
	if err != nil {
		return fail(s.classify(ctx, err))
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fail(s.classify(ctx, ctx.Err()))
	}

	s.record(runID, snap, a, log)
	res.Analysis = a
	if s.ranker != nil {
		res.Ranked = s.ranker.Rank(a)
	}
	res.Duration = time.Since(start)
	log.Debug().
		Str("symbol", symbol).
		Int("built", len(a.Strategies)).
		Int("ranked", len(res.Ranked)).
		Dur("elapsed", res.Duration).
		Msg("symbol analyzed")
	return res
}

// classify tags errors caused by the per-symbol deadline.
func (s *Scanner) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %v", ErrSymbolTimeout, s.cfg.SymbolTimeout, err)
	}
	return err
}

// withHistory fills IVHistory from stored readings when the snapshot has none.
func (s *Scanner) withHistory(snap *models.MarketSnapshot, log zerolog.Logger) *models.MarketSnapshot {
	if s.store == nil || len(snap.IVHistory) > 0 || s.cfg.HistoryDays == 0 {
		return snap
	}
	asOf := snap.Chain.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	readings, err := s.store.GetIVReadings(snap.Chain.Symbol, asOf.AddDate(0, 0, -s.cfg.HistoryDays), asOf.AddDate(0, 0, -1))
	if err != nil {
		log.Warn().Str("symbol", snap.Chain.Symbol).Err(err).Msg("IV history unavailable")
		return snap
	}
	if len(readings) == 0 {
		return snap
	}
	cp := *snap
	cp.IVHistory = make([]float64, len(readings))
	for i, r := range readings {
		cp.IVHistory[i] = r.IV
	}
	return &cp
}

// record stores today's ATM IV and the built strategies. Storage failures are
// logged and do not fail the symbol.
func (s *Scanner) record(runID string, snap *models.MarketSnapshot, a *engine.Analysis, log zerolog.Logger) {
	if s.store == nil {
		return
	}
	date := snap.Chain.AsOf
	if date.IsZero() {
		date = s.now()
	}
	reading := &models.IVReading{Symbol: a.Symbol, Date: date, IV: a.ATMIV, Timestamp: s.now().UTC()}
	if err := s.store.StoreIVReading(reading); err != nil {
		log.Warn().Str("symbol", a.Symbol).Err(err).Msg("failed to store IV reading")
	}
	if err := s.store.SaveStrategies(runID, a.Strategies); err != nil {
		log.Warn().Str("symbol", a.Symbol).Err(err).Msg("failed to save strategies")
	}
}
