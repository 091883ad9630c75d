package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"goldex.com/internal/quotes/wsmetrics"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/safe"
)

// gorillaTransport adapts a websocket conn to Transport. Only the hub's
// writer goroutine calls WriteFrame; pings go through WriteControl, which
// gorilla allows concurrently.
type gorillaTransport struct {
	conn *websocket.Conn
}

func (g *gorillaTransport) WriteFrame(ctx context.Context, frame []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = g.conn.SetWriteDeadline(dl)
	}
	return g.conn.WriteMessage(websocket.TextMessage, frame)
}

func (g *gorillaTransport) Close() error {
	_ = g.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return g.conn.Close()
}

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // CORS is open on the HTTP API too
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 12,
	}
}

// ServeWS upgrades the request and registers the conn with the hub. The
// initial symbol set comes from ?symbols=A,B and defaults to XAUUSD.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}

	var symbols []string
	if q := r.URL.Query().Get("symbols"); q != "" {
		symbols = strings.Split(q, ",")
	}
	sub := s.Hub.Subscribe(s.ctx, &gorillaTransport{conn: wsConn}, symbols)
	logger.Info(s.ctx, "ws connected",
		zap.String("sub", sub.ID()),
		zap.String("remote", r.RemoteAddr),
		zap.Strings("symbols", sub.Symbols()),
	)

	safe.GoCtx(s.ctx, func(context.Context) { s.pingLoop(sub, wsConn) })
	safe.GoCtx(s.ctx, func(context.Context) { s.readPump(sub, wsConn) })
}

func (s *Server) readPump(sub *Subscription, c *websocket.Conn) {
	reason := "client_closed"
	defer func() {
		s.Hub.remove(sub, reason)
	}()

	c.SetReadLimit(s.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(s.PongWait))
	c.SetPongHandler(func(string) error {
		wsmetrics.PongRecvTotal.Inc()
		return c.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				reason = "pong_timeout"
			}
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			s.Hub.AddSymbols(s.ctx, sub, msg.Symbols)
		case "unsub":
			s.Hub.RemoveSymbols(sub, msg.Symbols)
		}
	}
}

func (s *Server) pingLoop(sub *Subscription, c *websocket.Conn) {
	// 错开各连接的 ping 时间
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-sub.Done():
			t.Stop()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				wsmetrics.PingErrorsTotal.Inc()
				s.Hub.remove(sub, "ping_error")
				return
			}
			wsmetrics.PingSentTotal.Inc()
		case <-sub.Done():
			return
		case <-s.ctx.Done():
			s.Hub.remove(sub, "shutdown")
			return
		}
	}
}

// Handler serves the stream on every path of a dedicated listener, so both
// ws://host:port and ws://host:port/ws work.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.ServeWS)
	return mux
}
