package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"goldex.com/internal/quotes/wsmetrics"
	"goldex.com/pkg/safe"
)

var (
	errWriteTimeout = errors.New("frame write timed out")
	errClosed       = errors.New("subscription closed")
)

// Transport is the subscriber's outbound side. WriteFrame should honour the
// ctx deadline; Close must unblock a pending WriteFrame.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Subscription is one live subscriber. It is owned by the Hub; only the Hub
// changes its symbol set or removes it.
type Subscription struct {
	id string
	t  Transport

	queue chan []byte // bounded outbound queue, FIFO
	done  chan struct{}

	mu      sync.Mutex
	symbols map[string]struct{}

	closed atomic.Bool
}

func newSubscription(t Transport, queueSize int) *Subscription {
	return &Subscription{
		id:      uuid.NewString(),
		t:       t,
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
		symbols: make(map[string]struct{}, 4),
	}
}

func (s *Subscription) ID() string { return s.id }

// Done is closed once the subscription has been removed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

func (s *Subscription) wants(sym string) bool {
	s.mu.Lock()
	_, ok := s.symbols[sym]
	s.mu.Unlock()
	return ok
}

// offer never blocks; false means the queue is full or the subscription is gone.
func (s *Subscription) offer(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

// shutdown is one-shot; it reports whether this call did the work.
func (s *Subscription) shutdown() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	close(s.done)
	_ = s.t.Close()
	return true
}

// writeLoop drains the queue in order. A write that errors or exceeds
// writeTimeout ends the subscription through fail.
func (s *Subscription) writeLoop(writeTimeout time.Duration, fail func(reason string)) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			if err := s.write(frame, writeTimeout); err != nil {
				if errors.Is(err, errClosed) {
					return
				}
				reason := "write_error"
				if errors.Is(err, errWriteTimeout) {
					reason = "write_timeout"
				}
				wsmetrics.DroppedTotal.WithLabelValues(reason).Inc()
				fail(reason)
				return
			}
		}
	}
}

func (s *Subscription) write(frame []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	res := make(chan error, 1)
	safe.Go(func() { res <- s.t.WriteFrame(ctx, frame) })

	var err error
	select {
	case err = <-res:
	case <-ctx.Done():
		err = errWriteTimeout
	case <-s.done:
		return errClosed
	}
	wsmetrics.ObserveWrite(len(frame), time.Since(start), err)
	return err
}
