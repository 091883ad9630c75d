package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) ServerMsg {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	var m ServerMsg
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestServeWS_SnapshotPublishAndSubProtocol(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&staticSource{price: 2045.5}, Options{})
	srv := NewServer(ctx, hub)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	c1 := dial(t, url)
	c2 := dial(t, url+"?symbols=GC")

	m := read(t, c1)
	assert.Equal(t, TypeGoldData, m.Type)
	assert.Equal(t, model.SymbolXAUUSD, m.Data.Symbol)
	assert.Equal(t, model.SymbolGC, read(t, c2).Data.Symbol)

	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(rec(model.SymbolXAUUSD, 2050.25, 10))
	assert.Equal(t, 2050.25, read(t, c1).Data.Price)

	// c2 asks for spot too and gets its snapshot straight away
	sub, _ := json.Marshal(ClientMsg{Type: "sub", Symbols: []string{"XAUUSD"}})
	require.NoError(t, c2.WriteMessage(websocket.TextMessage, sub))
	got := read(t, c2)
	assert.Equal(t, model.SymbolXAUUSD, got.Data.Symbol)
	assert.Equal(t, 2050.25, got.Data.Price)

	// client disconnect releases the subscription
	require.NoError(t, c1.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_ServerShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(&staticSource{price: 1}, Options{})
	srv := NewServer(ctx, hub)
	srv.PingPeriod = 20 * time.Millisecond
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	read(t, c)
	cancel()

	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
