// Package storage persists IV history and constructed strategies.
package storage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// Interface defines the contract for IV history and strategy persistence.
//
// Implementations must be safe for concurrent use - the scanner calls these
// methods from every worker goroutine.
type Interface interface {
	// IV data storage. One reading is kept per symbol per calendar day; a
	// later reading for the same day replaces the earlier one.
	StoreIVReading(reading *models.IVReading) error
	GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error)
	GetLatestIVReading(symbol string) (*models.IVReading, error)

	// Constructed strategies
	SaveStrategies(runID string, strategies []*models.Strategy) error
	GetStrategies(symbol string, limit int) ([]StrategyRecord, error)

	Close() error
}

// StrategyRecord is a persisted strategy tagged with the scan run that built it.
type StrategyRecord struct {
	RunID    string          `json:"run_id"`
	SavedAt  time.Time       `json:"saved_at"`
	Strategy models.Strategy `json:"strategy"`
}

// Backend names accepted by NewStorage.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewStorage creates the storage implementation named by backend.
func NewStorage(backend, path string) (Interface, error) {
	switch strings.ToLower(backend) {
	case BackendJSON, "":
		return NewJSONStorage(path)
	case BackendSQLite:
		return NewSQLiteStorage(path)
	case BackendMemory:
		return NewMockStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func validateReading(r *models.IVReading) error {
	if r == nil || strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidReading)
	}
	if r.IV <= 0 || math.IsNaN(r.IV) || math.IsInf(r.IV, 0) {
		return fmt.Errorf("%w: %s iv %v", ErrInvalidReading, r.Symbol, r.IV)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: %s missing date", ErrInvalidReading, r.Symbol)
	}
	return nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// normalizeReading returns a copy keyed to its UTC calendar day.
func normalizeReading(r *models.IVReading) models.IVReading {
	out := *r
	out.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	out.Date = r.Date.UTC().Truncate(24 * time.Hour)
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return out
}

// inRange reports whether a reading's day falls within [start, end]; zero bounds are open.
func inRange(r models.IVReading, start, end time.Time) bool {
	d := dayKey(r.Date)
	if !start.IsZero() && d < dayKey(start) {
		return false
	}
	if !end.IsZero() && d > dayKey(end) {
		return false
	}
	return true
}

func sortReadings(rs []models.IVReading) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Date.Before(rs[j].Date) })
}

// sortRecords orders newest first, then by strategy name for a stable listing.
func sortRecords(rs []StrategyRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].SavedAt.Equal(rs[j].SavedAt) {
			return rs[i].SavedAt.After(rs[j].SavedAt)
		}
		return rs[i].Strategy.Name < rs[j].Strategy.Name
	})
}

func filterRecords(all []StrategyRecord, symbol string, limit int) []StrategyRecord {
	out := make([]StrategyRecord, 0, len(all))
	for _, r := range all {
		if symbol == "" || strings.EqualFold(r.Strategy.Symbol, symbol) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
