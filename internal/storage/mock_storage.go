package storage

import (
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// MockStorage is an in-memory Interface for tests and the memory backend.
// Errors can be injected per operation.
type MockStorage struct {
	mu          sync.Mutex
	readings    map[string][]models.IVReading
	records     []StrategyRecord
	storeError  error
	saveError   error
	storeCalls  int
	saveCalls   int
	closeCalled bool
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{readings: make(map[string][]models.IVReading)}
}

// StoreIVReading upserts the reading for its symbol and day.
func (m *MockStorage) StoreIVReading(reading *models.IVReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	if m.storeError != nil {
		return m.storeError
	}
	if err := validateReading(reading); err != nil {
		return err
	}
	r := normalizeReading(reading)
	list := m.readings[r.Symbol]
	for i := range list {
		if dayKey(list[i].Date) == dayKey(r.Date) {
			list[i] = r
			return nil
		}
	}
	list = append(list, r)
	sortReadings(list)
	m.readings[r.Symbol] = list
	return nil
}

// GetIVReadings returns readings for symbol between the two dates inclusive, oldest first.
func (m *MockStorage) GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IVReading
	for _, r := range m.readings[strings.ToUpper(symbol)] {
		if inRange(r, startDate, endDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetLatestIVReading returns the most recent reading for symbol.
func (m *MockStorage) GetLatestIVReading(symbol string) (*models.IVReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.readings[strings.ToUpper(symbol)]
	if len(list) == 0 {
		return nil, ErrNoIVReadings
	}
	latest := list[len(list)-1]
	return &latest, nil
}

// SaveStrategies records one run's strategies.
func (m *MockStorage) SaveStrategies(runID string, strategies []*models.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveError != nil {
		return m.saveError
	}
	now := time.Now().UTC()
	for _, st := range strategies {
		if st != nil {
			m.records = append(m.records, StrategyRecord{RunID: runID, SavedAt: now, Strategy: *st})
		}
	}
	return nil
}

// GetStrategies returns up to limit records for symbol, newest first.
func (m *MockStorage) GetStrategies(symbol string, limit int) ([]StrategyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterRecords(m.records, symbol, limit), nil
}

// Close marks the mock closed.
func (m *MockStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

// Mock control methods for testing

// SetStoreError makes StoreIVReading fail with err.
func (m *MockStorage) SetStoreError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeError = err
}

// SetSaveError makes SaveStrategies fail with err.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// StoreCallCount returns the number of StoreIVReading calls.
func (m *MockStorage) StoreCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeCalls
}

// SaveCallCount returns the number of SaveStrategies calls.
func (m *MockStorage) SaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// Closed reports whether Close was called.
func (m *MockStorage) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalled
}
