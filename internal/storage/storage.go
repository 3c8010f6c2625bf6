package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// DefaultMaxRecords caps the strategy history kept in a JSON file.
const DefaultMaxRecords = 5000

// JSONStorage keeps everything in a single JSON document rewritten atomically
// on every change. Suited to a single scanner process.
type JSONStorage struct {
	mu         sync.RWMutex
	filepath   string
	maxRecords int
	data       *Data
}

// Data is the on-disk document.
type Data struct {
	IVReadings  map[string][]models.IVReading `json:"iv_readings"`
	Strategies  []StrategyRecord              `json:"strategies"`
	LastUpdated time.Time                     `json:"last_updated"`
}

// NewJSONStorage opens or creates the JSON document at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath:   path,
		maxRecords: DefaultMaxRecords,
		data:       &Data{IVReadings: make(map[string][]models.IVReading)},
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	if err := s.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading storage: %w", err)
	}
	return s, nil
}

// Load replaces the in-memory state with the file's contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	if d.IVReadings == nil {
		d.IVReadings = make(map[string][]models.IVReading)
	}
	s.data = &d
	return nil
}

// saveLocked writes the document. Callers hold s.mu.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// StoreIVReading upserts the reading for its symbol and day.
func (s *JSONStorage) StoreIVReading(reading *models.IVReading) error {
	if err := validateReading(reading); err != nil {
		return err
	}
	r := normalizeReading(reading)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.data.IVReadings[r.Symbol]
	replaced := false
	for i := range list {
		if dayKey(list[i].Date) == dayKey(r.Date) {
			list[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, r)
		sortReadings(list)
	}
	s.data.IVReadings[r.Symbol] = list
	return s.saveLocked()
}

// GetIVReadings returns readings for symbol between the two dates inclusive, oldest first.
func (s *JSONStorage) GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.IVReading
	for _, r := range s.data.IVReadings[strings.ToUpper(symbol)] {
		if inRange(r, startDate, endDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetLatestIVReading returns the most recent reading for symbol.
func (s *JSONStorage) GetLatestIVReading(symbol string) (*models.IVReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.data.IVReadings[strings.ToUpper(symbol)]
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoIVReadings)
	}
	latest := list[len(list)-1]
	return &latest, nil
}

// SaveStrategies appends the strategies of one run, trimming the oldest
// records beyond the cap.
func (s *JSONStorage) SaveStrategies(runID string, strategies []*models.Strategy) error {
	if len(strategies) == 0 {
		return nil
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range strategies {
		if st == nil {
			continue
		}
		s.data.Strategies = append(s.data.Strategies, StrategyRecord{RunID: runID, SavedAt: now, Strategy: *st})
	}
	if over := len(s.data.Strategies) - s.maxRecords; over > 0 {
		s.data.Strategies = append([]StrategyRecord(nil), s.data.Strategies[over:]...)
	}
	return s.saveLocked()
}

// GetStrategies returns up to limit records for symbol, newest first. An
// empty symbol matches every record and a non-positive limit returns all.
func (s *JSONStorage) GetStrategies(symbol string, limit int) ([]StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRecords(s.data.Strategies, symbol, limit), nil
}

// Close flushes the document.
func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}
