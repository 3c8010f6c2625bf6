package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

func TestJSONStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.json")

	s, err := NewJSONStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.StoreIVReading(&models.IVReading{Symbol: "SPY", Date: day(3), IV: 0.19}))
	require.NoError(t, s.SaveStrategies("run-1", []*models.Strategy{strat("a", "SPY", "iron_condor")}))
	require.NoError(t, s.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	latest, err := reopened.GetLatestIVReading("SPY")
	require.NoError(t, err)
	assert.InDelta(t, 0.19, latest.IV, 1e-12)
	recs, err := reopened.GetStrategies("SPY", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-1", recs[0].RunID)
}

func TestJSONStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewJSONStorage(path)
	assert.Error(t, err)
}

func TestJSONStorage_TrimsOldestRecords(t *testing.T) {
	s, err := NewJSONStorage(filepath.Join(t.TempDir(), "engine.json"))
	require.NoError(t, err)
	s.maxRecords = 2

	require.NoError(t, s.SaveStrategies("run-1", []*models.Strategy{
		strat("a", "SPY", "a"), strat("b", "SPY", "b"), strat("c", "SPY", "c"),
	}))
	recs, err := s.GetStrategies("", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ids := []string{recs[0].Strategy.ID, recs[1].Strategy.ID}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.StoreIVReading(&models.IVReading{Symbol: "SPY", Date: day(3), IV: 0.19}))
	require.NoError(t, s.SaveStrategies("run-1", []*models.Strategy{strat("a", "SPY", "iron_condor")}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	readings, err := reopened.GetIVReadings("SPY", day(1), day(30))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	recs, err := reopened.GetStrategies("SPY", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "iron_condor", recs[0].Strategy.Name)
}

func TestNewStorage(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		path    string
		wantErr error
	}{
		{BackendJSON, filepath.Join(dir, "a.json"), nil},
		{"", filepath.Join(dir, "b.json"), nil},
		{BackendSQLite, filepath.Join(dir, "c.db"), nil},
		{"MEMORY", "", nil},
		{"postgres", "", ErrUnknownBackend},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := NewStorage(tt.backend, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Close())
		})
	}
}

func TestMockStorage_InjectedErrors(t *testing.T) {
	m := NewMockStorage()
	boom := assert.AnError
	m.SetStoreError(boom)
	m.SetSaveError(boom)

	assert.ErrorIs(t, m.StoreIVReading(&models.IVReading{Symbol: "SPY", Date: day(1), IV: 0.2}), boom)
	assert.ErrorIs(t, m.SaveStrategies("r", []*models.Strategy{strat("a", "SPY", "x")}), boom)
	assert.Equal(t, 1, m.StoreCallCount())
	assert.Equal(t, 1, m.SaveCallCount())

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}
