package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
)

type fakeTransport struct {
	frames chan []byte
	stuck  bool // never returns from WriteFrame, ignores Close
	failN  int32

	closed    atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}
}

func newFake(buf int) *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, buf), closeCh: make(chan struct{})}
}

func (f *fakeTransport) WriteFrame(ctx context.Context, frame []byte) error {
	if f.stuck {
		select {} // blocks forever
	}
	if atomic.AddInt32(&f.failN, -1) >= 0 {
		return errors.New("broken pipe")
	}
	select {
	case f.frames <- frame:
		return nil
	case <-f.closeCh:
		return errors.New("closed")
	}
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	f.closeOnce.Do(func() { close(f.closeCh) })
	return nil
}

func (f *fakeTransport) next(t *testing.T) ServerMsg {
	t.Helper()
	select {
	case b := <-f.frames:
		var m ServerMsg
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
		return ServerMsg{}
	}
}

type staticSource struct {
	calls int32
	price float64
}

func (s *staticSource) Snapshot(_ context.Context, symbol string) (model.PriceRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	return model.PriceRecord{Symbol: symbol, Price: s.price, Source: model.SourceMock}, nil
}

func rec(sym string, price float64, at int64) model.PriceRecord {
	return model.PriceRecord{Symbol: sym, Price: price, Source: model.SourceFinnhub, LastUpdate: time.Unix(at, 0).UTC()}
}

func TestSubscribe_SendsSnapshotImmediately(t *testing.T) {
	src := &staticSource{price: 2045.5}
	h := NewHub(src, Options{})
	ft := newFake(4)

	sub := h.Subscribe(context.Background(), ft, nil)
	assert.Equal(t, []string{model.SymbolXAUUSD}, sub.Symbols())

	m := ft.next(t)
	assert.Equal(t, TypeGoldData, m.Type)
	assert.Equal(t, model.SymbolXAUUSD, m.Data.Symbol)
	assert.Equal(t, 2045.5, m.Data.Price)
	assert.False(t, m.Timestamp.IsZero())
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestSubscribe_PrefersLastPublishedFrame(t *testing.T) {
	src := &staticSource{price: 1}
	h := NewHub(src, Options{})
	h.Publish(rec(model.SymbolGC, 2040, 100))

	ft := newFake(4)
	h.Subscribe(context.Background(), ft, []string{"gc", "bogus"})
	assert.Equal(t, 2040.0, ft.next(t).Data.Price)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))
}

func TestPublish_StuckSubscriberDoesNotBlockOthers(t *testing.T) {
	h := NewHub(nil, Options{QueueSize: 4, WriteTimeout: 50 * time.Millisecond})
	a, stuck, c := newFake(8), newFake(8), newFake(8)
	stuck.stuck = true

	h.Subscribe(context.Background(), a, nil)
	s2 := h.Subscribe(context.Background(), stuck, nil)
	h.Subscribe(context.Background(), c, nil)
	require.Equal(t, 3, h.Len())

	start := time.Now()
	n := h.Publish(rec(model.SymbolXAUUSD, 2045.5, 1))
	assert.Equal(t, 3, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publish must not wait on subscribers")

	assert.Equal(t, 2045.5, a.next(t).Data.Price)
	assert.Equal(t, 2045.5, c.next(t).Data.Price)

	select {
	case <-s2.Done():
	case <-time.After(time.Second):
		t.Fatal("stuck subscriber was not removed")
	}
	assert.Equal(t, 2, h.Len())
	assert.True(t, stuck.closed.Load())
}

func TestPublish_QueueOverflowRemovesSubscriber(t *testing.T) {
	h := NewHub(nil, Options{QueueSize: 4, WriteTimeout: time.Hour})
	slow := newFake(0) // unbuffered and never read: first write parks
	fast := newFake(64)
	s := h.Subscribe(context.Background(), slow, nil)
	h.Subscribe(context.Background(), fast, nil)

	// one frame parked in the writer + 4 queued, the 6th overflows
	for i := 0; i < 6; i++ {
		h.Publish(rec(model.SymbolXAUUSD, float64(2000+i), int64(i)))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("overflowing subscriber was not removed")
	}
	for i := 0; i < 6; i++ {
		assert.Equal(t, float64(2000+i), fast.next(t).Data.Price, "frames must arrive in publish order")
	}
	assert.Equal(t, 1, h.Len())
}

func TestWriteError_RemovesSubscriber(t *testing.T) {
	h := NewHub(nil, Options{})
	ft := newFake(4)
	ft.failN = 1
	s := h.Subscribe(context.Background(), ft, nil)

	h.Publish(rec(model.SymbolXAUUSD, 1, 1))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber not removed after write error")
	}
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Publish(rec(model.SymbolXAUUSD, 2, 2)))
}

type panicTransport struct{ closed atomic.Bool }

func (p *panicTransport) WriteFrame(context.Context, []byte) error { panic("writer bug") }

func (p *panicTransport) Close() error { p.closed.Store(true); return nil }

func TestWritePanic_RemovesSubscriberOnly(t *testing.T) {
	h := NewHub(nil, Options{WriteTimeout: 50 * time.Millisecond})
	pt := &panicTransport{}
	bad := h.Subscribe(context.Background(), pt, nil)
	good := newFake(4)
	h.Subscribe(context.Background(), good, nil)

	h.Publish(rec(model.SymbolXAUUSD, 1, 1))
	select {
	case <-bad.Done():
	case <-time.After(time.Second):
		t.Fatal("panicking subscriber not removed")
	}
	assert.True(t, pt.closed.Load())
	assert.Equal(t, 1.0, good.next(t).Data.Price)
	assert.Equal(t, 1, h.Len())
}

func TestSymbolsRouting(t *testing.T) {
	h := NewHub(nil, Options{})
	ft := newFake(8)
	sub := h.Subscribe(context.Background(), ft, []string{"GC"})

	assert.Equal(t, 0, h.Publish(rec(model.SymbolXAUUSD, 1, 1)))
	assert.Equal(t, 1, h.Publish(rec(model.SymbolGC, 2, 1)))
	assert.Equal(t, model.SymbolGC, ft.next(t).Data.Symbol)

	added := h.AddSymbols(context.Background(), sub, []string{"xauusd", "GC", "nope"})
	assert.Equal(t, []string{model.SymbolXAUUSD}, added)
	// snapshot of the newly added symbol comes from the last publish
	assert.Equal(t, model.SymbolXAUUSD, ft.next(t).Data.Symbol)

	h.RemoveSymbols(sub, []string{"GC"})
	assert.Equal(t, 0, h.Publish(rec(model.SymbolGC, 3, 2)))
	assert.Equal(t, 1, h.Publish(rec(model.SymbolXAUUSD, 4, 2)))
}

func TestUnsubscribe_ConcurrentWithPublish(t *testing.T) {
	h := NewHub(nil, Options{QueueSize: 64})
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			h.Publish(rec(model.SymbolXAUUSD, float64(i), int64(i)))
			i++
		}
	}()

	for i := 0; i < 50; i++ {
		ft := newFake(1024)
		s := h.Subscribe(context.Background(), ft, nil)
		h.Unsubscribe(s)
		h.Unsubscribe(s)
		assert.True(t, ft.closed.Load())
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}

func TestSubscribe_SnapshotNeverFollowsNewerPublish(t *testing.T) {
	for i := 0; i < 100; i++ {
		h := NewHub(nil, Options{QueueSize: 8})
		h.Publish(rec(model.SymbolXAUUSD, 1, 1))

		ft := newFake(8)
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			h.Subscribe(context.Background(), ft, nil)
		}()
		go func() {
			defer wg.Done()
			<-start
			h.Publish(rec(model.SymbolXAUUSD, 2, 2))
		}()
		close(start)
		wg.Wait()

		first := ft.next(t)
		select {
		case b := <-ft.frames:
			var second ServerMsg
			require.NoError(t, json.Unmarshal(b, &second))
			require.False(t, second.Data.LastUpdate.Before(first.Data.LastUpdate),
				"iteration %d: %v after %v", i, second.Data.LastUpdate, first.Data.LastUpdate)
		case <-time.After(50 * time.Millisecond):
			assert.Equal(t, 2.0, first.Data.Price)
		}
		h.Close()
	}
}
