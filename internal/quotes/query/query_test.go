package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/cache"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
	"goldex.com/pkg/xerr"
)

type countingResolver struct {
	calls int32
	delay time.Duration
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, symbol string) (model.PriceRecord, error) {
	atomic.AddInt32(&r.calls, 1)
	time.Sleep(r.delay)
	if r.err != nil {
		return model.PriceRecord{}, r.err
	}
	return model.PriceRecord{Symbol: symbol, Price: 2045.5, Source: model.SourceFinnhub, LastUpdate: time.Unix(1772461800, 0).UTC()}, nil
}

func TestCurrentPrice_ColdThenHot(t *testing.T) {
	r := &countingResolver{}
	s := New(cache.New(nil), r)

	first, cached, err := s.CurrentPrice(context.Background(), "xauusd")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, model.SymbolXAUUSD, first.Symbol)

	second, cached, err := s.CurrentPrice(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestCurrentPrice_ConcurrentMissesResolveOnce(t *testing.T) {
	r := &countingResolver{delay: 50 * time.Millisecond}
	s := New(cache.New(nil), r)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.CurrentPrice(context.Background(), model.SymbolGC)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestCurrentPrice_Unsupported(t *testing.T) {
	r := &countingResolver{}
	_, _, err := New(cache.New(nil), r).CurrentPrice(context.Background(), "NOTAGOLDSYMBOL")
	require.Error(t, err)
	assert.Equal(t, xerr.SymbolUnsupported, xerr.CodeOf(err))
	assert.Contains(t, xerr.Message(err), "NOTAGOLDSYMBOL")
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.calls))
}

func TestCurrentPrice_ExhaustedIs502(t *testing.T) {
	exh := &provider.ExhaustedError{Symbol: "GC", Failures: []provider.Failure{
		{Provider: "finnhub", Err: provider.Errorf("finnhub", provider.KindTimeout, "slow")},
	}}
	s := New(cache.New(nil), &countingResolver{err: exh})

	_, _, err := s.CurrentPrice(context.Background(), "GC")
	assert.Equal(t, 502, xerr.HTTPStatus(err))
	assert.ErrorIs(t, err, provider.ErrTimeout)

	_, _, err = New(cache.New(nil), &countingResolver{err: errors.New("odd")}).CurrentPrice(context.Background(), "GC")
	assert.Equal(t, 503, xerr.HTTPStatus(err))
}

func TestParseDays(t *testing.T) {
	s := New(cache.New(nil), &countingResolver{})
	tests := []struct {
		raw  string
		want int
		bad  bool
	}{
		{"", DefaultDays, false},
		{"5", 5, false},
		{"365", 365, false},
		{"0", 0, true},
		{"366", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := s.ParseDays(tt.raw)
		if tt.bad {
			assert.Equal(t, xerr.InvalidParam, xerr.CodeOf(err), tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestHistorical_GeneratedOrderAndBounds(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := cache.New(nil)
	c.Set(model.SymbolXAUUSD, model.PriceRecord{Symbol: model.SymbolXAUUSD, Price: 2045.5})
	s := New(c, &countingResolver{}, WithClock(func() time.Time { return now }))

	bars, err := s.Historical(context.Background(), model.SymbolXAUUSD, 5)
	require.NoError(t, err)
	require.Len(t, bars, 5)
	assert.Equal(t, "2026-03-02", bars[0].Date)
	assert.Equal(t, 2045.5, bars[0].Close)
	for i, b := range bars {
		assert.True(t, b.Valid(), "%+v", b)
		if i > 0 {
			assert.Greater(t, bars[i-1].Date, b.Date)
		}
	}

	_, err = s.Historical(context.Background(), model.SymbolXAUUSD, 0)
	assert.Equal(t, xerr.InvalidParam, xerr.CodeOf(err))
}

type memStore struct {
	mu   sync.Mutex
	bars map[string]model.Bar
	err  error
}

func (m *memStore) Range(_ context.Context, symbol, from, to string) ([]model.Bar, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Bar
	for k, b := range m.bars {
		if k[:len(symbol)] == symbol && b.Date >= from && b.Date <= to {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, symbol string, bars []model.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[symbol+"|"+b.Date] = b
	}
	return nil
}

func TestHistorical_StoreWinsAndIsBackfilled(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	stored := model.Bar{Date: "2026-02-28", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 7}
	st := &memStore{bars: map[string]model.Bar{"GC|2026-02-28": stored}}
	s := New(cache.New(nil), &countingResolver{}, WithBarStore(st), WithClock(func() time.Time { return now }))

	bars, err := s.Historical(context.Background(), model.SymbolGC, 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, stored, bars[2])

	// yesterday persisted, today not
	assert.Len(t, st.bars, 2)
	_, ok := st.bars["GC|2026-03-01"]
	assert.True(t, ok)
}

func TestHistorical_StoreErrorDegrades(t *testing.T) {
	s := New(cache.New(nil), &countingResolver{}, WithBarStore(&memStore{err: errors.New("db down")}))
	bars, err := s.Historical(context.Background(), model.SymbolGLD, 4)
	require.NoError(t, err)
	assert.Len(t, bars, 4)
}
