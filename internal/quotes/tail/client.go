package tail

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"goldex.com/internal/quotes/ws"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/safe"
)

// Client follows the price stream and reconnects with jittered backoff.
type Client struct {
	URL     string
	Symbols []string
	OnFrame func(ws.ServerMsg)

	StableReset time.Duration // 连接存活多久才重置 backoff
	PingEvery   time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func (c *Client) defaults() {
	if c.StableReset == 0 {
		c.StableReset = 10 * time.Second
	}
	if c.PingEvery == 0 {
		c.PingEvery = 20 * time.Second
	}
	if c.MinBackoff == 0 {
		c.MinBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
}

// DialURL appends ?symbols= so the first frames already match the selection.
func (c *Client) DialURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	if len(c.Symbols) > 0 {
		q := u.Query()
		q.Set("symbols", strings.Join(c.Symbols, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) Run(ctx context.Context) error {
	if c.OnFrame == nil {
		return errors.New("tail: nil OnFrame")
	}
	c.defaults()
	target, err := c.DialURL()
	if err != nil {
		return err
	}

	backoff := c.MinBackoff
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for ctx.Err() == nil {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, _, err := websocket.Dial(dctx, target, nil)
		cancel()
		if err != nil {
			sleep := jitter(rng, backoff)
			logger.Warn(ctx, "tail dial failed", zap.String("url", target), zap.Duration("retry_in", sleep), zap.Error(err))
			if !sleepCtx(ctx, sleep) {
				return ctx.Err()
			}
			backoff = minDur(backoff*2, c.MaxBackoff)
			continue
		}

		logger.Info(ctx, "tail connected", zap.String("url", target))
		start := time.Now()
		err = c.serveConn(ctx, conn)
		_ = conn.CloseNow()

		// 连接稳定才重置 backoff，避免重连风暴
		if time.Since(start) >= c.StableReset {
			backoff = c.MinBackoff
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			sleep := jitter(rng, backoff)
			logger.Warn(ctx, "tail connection ended",
				zap.Error(err),
				zap.Int("close_status", int(websocket.CloseStatus(err))),
				zap.Duration("retry_in", sleep),
			)
			if !sleepCtx(ctx, sleep) {
				return ctx.Err()
			}
			backoff = minDur(backoff*2, c.MaxBackoff)
		}
	}
	return ctx.Err()
}

func (c *Client) serveConn(ctx context.Context, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	safe.GoCtx(ctx, func(ctx context.Context) {
		for {
			_, raw, err := conn.Read(ctx)
			if err != nil {
				errCh <- err
				return
			}
			var msg ws.ServerMsg
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != ws.TypeGoldData {
				logger.Debug(ctx, "tail skip frame", zap.ByteString("raw", raw))
				continue
			}
			c.OnFrame(msg)
		}
	})

	pingT := time.NewTicker(c.PingEvery)
	defer pingT.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingT.C:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	f := 0.5 + rng.Float64() // 0.5x~1.5x
	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
