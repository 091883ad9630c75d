package provider_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
	"goldex.com/internal/quotes/provider/mock"
	"goldex.com/pkg/ratelimit"
)

type fakeClient struct {
	name    string
	symbols map[string]bool
	err     error
	calls   int32
}

func newFake(name string, err error) *fakeClient {
	return &fakeClient{name: name, err: err}
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Supports(symbol string) bool {
	return f.symbols == nil || f.symbols[symbol]
}

func (f *fakeClient) Fetch(_ context.Context, symbol string) (model.PriceRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return model.PriceRecord{}, f.err
	}
	return model.PriceRecord{Symbol: symbol, Price: 1, Source: f.name}, nil
}

func (f *fakeClient) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func TestChain_FallsThroughToMock(t *testing.T) {
	a := newFake("a", provider.Errorf("a", provider.KindTimeout, "slow"))
	b := newFake("b", provider.Errorf("b", provider.KindRateLimited, "429"))
	m := mock.New(func() time.Time { return time.Unix(1772461800, 0) })

	// mock listed first still runs last
	chain := provider.NewChain(m, a, b)
	assert.Equal(t, []string{"a", "b", provider.MockName}, chain.Names())

	rec, err := chain.Resolve(context.Background(), model.SymbolXAUUSD)
	require.NoError(t, err)
	assert.Equal(t, model.SourceMock, rec.Source)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestChain_ShortCircuitsOnFirstSuccess(t *testing.T) {
	a := newFake("a", nil)
	b := newFake("b", nil)

	rec, err := provider.NewChain(a, b).Resolve(context.Background(), model.SymbolGC)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Source)
	assert.Equal(t, 0, b.Calls())
}

func TestChain_ExhaustedKeepsOrder(t *testing.T) {
	a := newFake("a", provider.Errorf("a", provider.KindUnauthorized, "no key"))
	b := newFake("b", nil)
	b.symbols = map[string]bool{model.SymbolGLD: true}
	c := newFake("c", provider.Errorf("c", provider.KindMalformed, "garbage"))

	_, err := provider.NewChain(a, b, c).Resolve(context.Background(), model.SymbolXAUUSD)
	require.Error(t, err)

	var exh *provider.ExhaustedError
	require.True(t, errors.As(err, &exh))
	assert.Equal(t, model.SymbolXAUUSD, exh.Symbol)
	require.Len(t, exh.Failures, 3)
	assert.Equal(t, "a", exh.Failures[0].Provider)
	assert.ErrorIs(t, exh.Failures[0].Err, provider.ErrUnauthorized)
	assert.Equal(t, "b", exh.Failures[1].Provider)
	assert.ErrorIs(t, exh.Failures[1].Err, provider.ErrSymbolUnsupported)
	assert.Equal(t, "c", exh.Failures[2].Provider)
	assert.ErrorIs(t, err, provider.ErrMalformed)
	assert.Equal(t, 0, b.Calls())
}

func TestChain_StopsOnCancelledContext(t *testing.T) {
	a := newFake("a", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.NewChain(a).Resolve(ctx, model.SymbolGC)
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.Equal(t, 0, a.Calls())
}

func TestWithRateLimit_FailsFast(t *testing.T) {
	a := newFake("a", nil)
	c := provider.WithRateLimit(a, 1, 1)

	_, err := c.Fetch(context.Background(), model.SymbolGC)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), model.SymbolGC)
	assert.ErrorIs(t, err, provider.ErrRateLimited)
	assert.Equal(t, 1, a.Calls())

	assert.Same(t, provider.Client(a), provider.WithRateLimit(a, 0, 0))
}

func TestWithBreaker_OpensAndSkipsNetwork(t *testing.T) {
	a := newFake("a", provider.Errorf("a", provider.KindUnavailable, "503"))
	m := ratelimit.NewManager(ratelimit.Rule{TripConsecutiveFailures: 2, Timeout: time.Hour}, nil, provider.BreakerSuccess)
	c := provider.WithBreaker(a, m)

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), model.SymbolGC)
		assert.ErrorIs(t, err, provider.ErrUnavailable)
	}
	assert.Equal(t, 2, a.Calls())

	_, err := c.Fetch(context.Background(), model.SymbolGC)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	assert.Equal(t, 2, a.Calls(), "open breaker must not call upstream")
}

func TestWithBreaker_UnsupportedDoesNotTrip(t *testing.T) {
	a := newFake("a", nil)
	a.symbols = map[string]bool{model.SymbolGLD: true}
	m := ratelimit.NewManager(ratelimit.Rule{TripConsecutiveFailures: 1, Timeout: time.Hour}, nil, provider.BreakerSuccess)
	c := provider.WithBreaker(a, m)

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), model.SymbolXAUUSD)
		assert.ErrorIs(t, err, provider.ErrSymbolUnsupported)
	}
	_, err := c.Fetch(context.Background(), model.SymbolGLD)
	assert.NoError(t, err)
}

func TestErrorIsMatchesKindOnly(t *testing.T) {
	err := provider.Errorf("x", provider.KindTimeout, "deadline")
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.NotErrorIs(t, err, provider.ErrUnavailable)
	assert.Equal(t, provider.KindTimeout, provider.KindOf(err))
	assert.Equal(t, provider.KindUnavailable, provider.KindOf(errors.New("plain")))
}
