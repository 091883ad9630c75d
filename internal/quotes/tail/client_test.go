package tail

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/ws"
)

type snapSource struct{}

func (snapSource) Snapshot(_ context.Context, symbol string) (model.PriceRecord, error) {
	return model.PriceRecord{Symbol: symbol, Price: 2045.5, Source: model.SourceMock, LastUpdate: time.Unix(1772461800, 0).UTC()}, nil
}

func startStream(t *testing.T, ctx context.Context) (*ws.Hub, string) {
	t.Helper()
	hub := ws.NewHub(snapSource{}, ws.Options{})
	srv := ws.NewServer(ctx, hub)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func recv(t *testing.T, ch <-chan ws.ServerMsg) ws.ServerMsg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("no frame")
		return ws.ServerMsg{}
	}
}

func TestClient_SnapshotThenPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub, url := startStream(t, ctx)

	frames := make(chan ws.ServerMsg, 8)
	c := &Client{URL: url, Symbols: []string{"GC"}, OnFrame: func(m ws.ServerMsg) { frames <- m }}
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	first := recv(t, frames)
	assert.Equal(t, ws.TypeGoldData, first.Type)
	assert.Equal(t, "GC", first.Data.Symbol)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(model.PriceRecord{Symbol: "GC", Price: 2050, Source: model.SourceQuandl, LastUpdate: time.Unix(1772461900, 0).UTC()})
	second := recv(t, frames)
	assert.Equal(t, 2050.0, second.Data.Price)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub, url := startStream(t, ctx)

	frames := make(chan ws.ServerMsg, 8)
	c := &Client{URL: url, OnFrame: func(m ws.ServerMsg) { frames <- m }, MinBackoff: 10 * time.Millisecond}
	go func() { _ = c.Run(ctx) }()

	assert.Equal(t, "XAUUSD", recv(t, frames).Data.Symbol)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	// 重连后重新拿到快照
	assert.Equal(t, "XAUUSD", recv(t, frames).Data.Symbol)
}

func TestDialURLAndLine(t *testing.T) {
	c := &Client{URL: "ws://localhost:4000/ws", Symbols: []string{"GC", "XAUUSD"}}
	u, err := c.DialURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:4000/ws?symbols=GC%2CXAUUSD", u)

	line := Line(ws.ServerMsg{Data: model.PriceRecord{
		Symbol: "GC", Price: 2045.5, Change: 12.3, ChangePercent: 0.6,
		Source: "Quandl", LastUpdate: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	}})
	assert.Equal(t, "GC         2045.50 +12.30 (+0.60%)  Quandl        2026-03-02T14:30:00Z", line)
}
