package marketdata

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

var fixedDay = time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

func synthetic(cfg SyntheticConfig) *SyntheticProvider {
	return NewSyntheticProvider(cfg).WithClock(func() time.Time { return fixedDay })
}

func TestSyntheticProvider_ChainShape(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Spots = map[string]float64{"SPY": 450}
	cfg.MissingGreeksRatio = 0
	p := synthetic(cfg)

	snap, err := p.Snapshot(context.Background(), "spy")
	require.NoError(t, err)
	chain := snap.Chain

	require.NoError(t, chain.Validate())
	assert.Equal(t, "SPY", chain.Symbol)
	assert.Equal(t, 450.0, chain.Spot)
	assert.Equal(t, 30, chain.DTE())
	assert.Len(t, snap.IVHistory, cfg.HistoryDays)
	assert.True(t, snap.Direction.Valid())

	for _, q := range chain.Quotes {
		assert.Zero(t, math.Mod(q.Strike, 5), "strike %.2f off the 5 grid", q.Strike)
		assert.LessOrEqual(t, q.Bid, q.Ask)
		assert.Positive(t, q.IV)
		assert.Positive(t, q.OpenInterest)
		require.NotNil(t, q.Greeks)
		if q.Type == models.Call {
			assert.GreaterOrEqual(t, q.Greeks.Delta, 0.0)
		} else {
			assert.LessOrEqual(t, q.Greeks.Delta, 0.0)
		}
	}

	// skewed smile: downside puts carry more volatility than upside calls
	put, ok := chain.Find(400, models.Put)
	require.True(t, ok)
	call, ok := chain.Find(500, models.Call)
	require.True(t, ok)
	assert.Greater(t, put.IV, call.IV)
}

func TestSyntheticProvider_Deterministic(t *testing.T) {
	p := synthetic(DefaultSyntheticConfig())

	a, err := p.Snapshot(context.Background(), "QQQ")
	require.NoError(t, err)
	b, err := p.Snapshot(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := p.Snapshot(context.Background(), "IWM")
	require.NoError(t, err)
	assert.NotEqual(t, a.Chain.Spot, c.Chain.Spot)
}

func TestSyntheticProvider_MissingGreeks(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.MissingGreeksRatio = 1
	snap, err := synthetic(cfg).Snapshot(context.Background(), "XYZ")
	require.NoError(t, err)
	for _, q := range snap.Chain.Quotes {
		assert.Nil(t, q.Greeks)
	}
}

func TestSyntheticProvider_Errors(t *testing.T) {
	p := synthetic(DefaultSyntheticConfig())

	_, err := p.Snapshot(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Snapshot(ctx, "SPY")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileProvider_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want, err := synthetic(DefaultSyntheticConfig()).Snapshot(context.Background(), "SPY")
	require.NoError(t, err)
	require.NoError(t, WriteSnapshot(dir, want))

	p, err := NewFileProvider(dir)
	require.NoError(t, err)
	got, err := p.Snapshot(context.Background(), "spy")
	require.NoError(t, err)

	assert.Equal(t, want.Chain.Spot, got.Chain.Spot)
	assert.True(t, want.Chain.Expiry.Equal(got.Chain.Expiry))
	assert.Len(t, got.Chain.Quotes, len(want.Chain.Quotes))
	assert.Equal(t, want.Direction, got.Direction)
	assert.NoError(t, got.Chain.Validate())
}

func TestFileProvider_Errors(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFileProvider(dir)
	require.NoError(t, err)

	_, err = p.Snapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	_, err = p.Snapshot(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "BAD.yaml"), []byte("chain:\n  spot: 10\nbogus: 1\n"), 0o600))
	_, err = p.Snapshot(context.Background(), "BAD")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)

	_, err = NewFileProvider(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFileProvider_DefaultsQuoteExpiry(t *testing.T) {
	dir := t.TempDir()
	doc := `chain:
  spot: 100
  expiry: 2026-11-20T00:00:00Z
  as_of: 2026-10-21T00:00:00Z
  quotes:
    - {strike: 100, option_type: CALL, bid: 2.0, ask: 2.2, iv: 0.2, open_interest: 500, volume: 10}
    - {strike: 100, option_type: PUT, bid: 1.9, ask: 2.1, iv: 0.21, open_interest: 400, volume: 12}
direction: neutral
confidence: 0.7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ABC.yml"), []byte(doc), 0o600))
	p, err := NewFileProvider(dir)
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, "ABC", snap.Chain.Symbol)
	assert.Equal(t, 30, snap.Chain.DTE())
	for _, q := range snap.Chain.Quotes {
		assert.True(t, q.Expiry.Equal(snap.Chain.Expiry))
	}
}

// fakeProvider fails the first failN calls with err, then serves a snapshot.
type fakeProvider struct {
	calls int32
	failN int32
	err   error
}

func (f *fakeProvider) Snapshot(_ context.Context, symbol string) (*models.MarketSnapshot, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failN < 0 || n <= f.failN {
		return nil, f.err
	}
	return &models.MarketSnapshot{Chain: models.OptionChain{Symbol: symbol, Spot: 100}}, nil
}

func TestCircuitBreakerProvider_Trips(t *testing.T) {
	fake := &fakeProvider{failN: -1, err: errors.New("503 service unavailable")}
	cb := NewCircuitBreakerProvider(fake, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := cb.Snapshot(context.Background(), "SPY")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Snapshot(context.Background(), "SPY")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.calls))
}

func TestCircuitBreakerProvider_UnknownSymbolDoesNotTrip(t *testing.T) {
	fake := &fakeProvider{failN: -1, err: ErrSymbolNotFound}
	settings := DefaultCircuitBreakerSettings()
	settings.MinRequests = 1
	cb := NewCircuitBreakerProvider(fake, settings, zerolog.Nop())

	for i := 0; i < 10; i++ {
		_, err := cb.Snapshot(context.Background(), "NOPE")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerProvider_PassesThrough(t *testing.T) {
	cb := NewCircuitBreakerProvider(&fakeProvider{}, DefaultCircuitBreakerSettings(), zerolog.Nop())
	snap, err := cb.Snapshot(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", snap.Chain.Symbol)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

// mockProvider records calls through testify's mock.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	args := m.Called(ctx, symbol)
	snap, _ := args.Get(0).(*models.MarketSnapshot)
	return snap, args.Error(1)
}

func TestRetryProvider_RecoversFromTransient(t *testing.T) {
	m := &mockProvider{}
	m.On("Snapshot", mock.Anything, "SPY").Return(nil, errors.New("connection reset by peer")).Twice()
	m.On("Snapshot", mock.Anything, "SPY").Return(&models.MarketSnapshot{Chain: models.OptionChain{Symbol: "SPY", Spot: 100}}, nil).Once()
	r := NewRetryProvider(m, fastRetry(), zerolog.Nop())

	snap, err := r.Snapshot(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", snap.Chain.Symbol)
	m.AssertNumberOfCalls(t, "Snapshot", 3)
	m.AssertExpectations(t)
}

func TestRetryProvider_PermanentErrorStops(t *testing.T) {
	m := &mockProvider{}
	m.On("Snapshot", mock.Anything, "NOPE").Return(nil, ErrSymbolNotFound)
	r := NewRetryProvider(m, fastRetry(), zerolog.Nop())

	_, err := r.Snapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	m.AssertNumberOfCalls(t, "Snapshot", 1)
}

func TestRetryProvider_GivesUp(t *testing.T) {
	m := &mockProvider{}
	m.On("Snapshot", mock.Anything, "SPY").Return(nil, ErrTransient)
	r := NewRetryProvider(m, fastRetry(), zerolog.Nop())

	_, err := r.Snapshot(context.Background(), "SPY")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "4 attempts")
	m.AssertNumberOfCalls(t, "Snapshot", 4)
}

func TestRetryProvider_CanceledDuringBackoff(t *testing.T) {
	fake := &fakeProvider{failN: -1, err: ErrTransient}
	r := NewRetryProvider(fake, RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Snapshot(ctx, "SPY")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.calls))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrTransient, true},
		{errors.New("HTTP 429 rate limit"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{ErrSymbolNotFound, false},
		{context.Canceled, false},
		{errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}
