package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/wsmetrics"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/safe"
)

const (
	DefaultQueueSize    = 16
	DefaultWriteTimeout = 5 * time.Second
)

// SnapshotSource gives a new subscriber its first frame, fetching on a miss.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol string) (model.PriceRecord, error)
}

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	Now          func() time.Time
}

type lastFrame struct {
	at    time.Time // record LastUpdate
	frame []byte
}

// Hub is the broadcaster: symbol -> subscribers. Publish never blocks on a
// subscriber; slow or broken subscribers are removed.
type Hub struct {
	src  SnapshotSource
	opts Options

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{} // symbol -> set
	all  map[*Subscription]struct{}
	last map[string]lastFrame // symbol -> last published frame
}

func NewHub(src SnapshotSource, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		src:  src,
		opts: opts,
		subs: make(map[string]map[*Subscription]struct{}, 8),
		all:  make(map[*Subscription]struct{}, 64),
		last: make(map[string]lastFrame, 8),
	}
}

func (h *Hub) Name() string { return "broadcaster" }

// normalize drops unsupported symbols and duplicates; empty input falls back
// to the default symbol.
func normalize(symbols []string, fallback bool) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym, ok := model.NormalizeSymbol(s)
		if !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	if len(out) == 0 && fallback {
		out = append(out, model.DefaultSymbol)
	}
	return out
}

// Subscribe registers t for symbols and queues a snapshot frame for each of
// them before returning.
func (h *Hub) Subscribe(ctx context.Context, t Transport, symbols []string) *Subscription {
	sub := newSubscription(t, h.opts.QueueSize)
	syms := normalize(symbols, true)
	snaps := h.snapshots(ctx, syms)

	h.mu.Lock()
	h.all[sub] = struct{}{}
	h.addLocked(sub, syms)
	ok := h.offerLocked(sub, h.pickLocked(syms, snaps))
	h.mu.Unlock()

	wsmetrics.OnOpen()
	wsmetrics.SubOpsTotal.WithLabelValues("sub").Inc()
	safe.Go(func() { sub.writeLoop(h.opts.WriteTimeout, func(reason string) { h.remove(sub, reason) }) })

	if !ok {
		h.overflow(sub)
	}
	logger.Debug(ctx, "subscriber added", zap.String("sub", sub.id), zap.Strings("symbols", syms))
	return sub
}

// AddSymbols extends sub's symbol set and snapshots the newly added ones.
func (h *Hub) AddSymbols(ctx context.Context, sub *Subscription, symbols []string) []string {
	syms := normalize(symbols, false)
	fresh := syms[:0:0]
	for _, s := range syms {
		if !sub.wants(s) {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	snaps := h.snapshots(ctx, fresh)

	h.mu.Lock()
	if _, live := h.all[sub]; !live {
		h.mu.Unlock()
		return nil
	}
	h.addLocked(sub, fresh)
	ok := h.offerLocked(sub, h.pickLocked(fresh, snaps))
	h.mu.Unlock()

	wsmetrics.SubOpsTotal.WithLabelValues("sub").Inc()
	if !ok {
		h.overflow(sub)
	}
	return fresh
}

func (h *Hub) RemoveSymbols(sub *Subscription, symbols []string) {
	syms := normalize(symbols, false)
	h.mu.Lock()
	for _, s := range syms {
		if set := h.subs[s]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, s)
			}
		}
		sub.mu.Lock()
		delete(sub.symbols, s)
		sub.mu.Unlock()
	}
	h.mu.Unlock()
	wsmetrics.SubOpsTotal.WithLabelValues("unsub").Inc()
}

// Unsubscribe removes sub and closes its transport. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, "unsubscribe")
}

// Publish fans rec out to every subscriber of its symbol and returns how many
// accepted the frame. The frame is encoded once.
func (h *Hub) Publish(rec model.PriceRecord) int {
	frame, err := EncodeRecord(rec, h.opts.Now())
	if err != nil {
		logger.Error(context.Background(), "encode frame", zap.String("symbol", rec.Symbol), zap.Error(err))
		return 0
	}
	wsmetrics.PublishTotal.Inc()

	h.mu.Lock()
	if prev, ok := h.last[rec.Symbol]; !ok || !rec.LastUpdate.Before(prev.at) {
		h.last[rec.Symbol] = lastFrame{at: rec.LastUpdate, frame: frame}
	}
	set := h.subs[rec.Symbol]
	targets := make([]*Subscription, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	n := 0
	for _, s := range targets {
		if s.offer(frame) {
			n++
			continue
		}
		h.overflow(s)
	}
	return n
}

// OnUpdate lets the hub sit in the scheduler's listener list.
func (h *Hub) OnUpdate(_ context.Context, rec model.PriceRecord) error {
	h.Publish(rec)
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// Close removes every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.all))
	for s := range h.all {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.remove(s, "shutdown")
	}
}

func (h *Hub) addLocked(sub *Subscription, syms []string) {
	for _, s := range syms {
		set := h.subs[s]
		if set == nil {
			set = make(map[*Subscription]struct{}, 16)
			h.subs[s] = set
		}
		set[sub] = struct{}{}
		sub.mu.Lock()
		sub.symbols[s] = struct{}{}
		sub.mu.Unlock()
	}
}

// pickLocked prefers the last published frame over a snapshot fetched
// before the lock was taken, so a subscriber never sees an older record
// after a newer one.
func (h *Hub) pickLocked(syms []string, snaps map[string][]byte) [][]byte {
	out := make([][]byte, 0, len(syms))
	for _, s := range syms {
		if lf, ok := h.last[s]; ok {
			out = append(out, lf.frame)
			continue
		}
		if f := snaps[s]; f != nil {
			out = append(out, f)
		}
	}
	return out
}

// offerLocked queues frames while h.mu is held, so a concurrent Publish for
// the same symbol lands behind them. offer never blocks.
func (h *Hub) offerLocked(sub *Subscription, frames [][]byte) bool {
	for _, f := range frames {
		if !sub.offer(f) {
			return false
		}
	}
	return true
}

func (h *Hub) snapshots(ctx context.Context, syms []string) map[string][]byte {
	out := make(map[string][]byte, len(syms))
	if h.src == nil {
		return out
	}
	for _, s := range syms {
		h.mu.RLock()
		_, have := h.last[s]
		h.mu.RUnlock()
		if have {
			continue
		}
		rec, err := h.src.Snapshot(ctx, s)
		if err != nil {
			logger.Warn(ctx, "snapshot for new subscriber failed", zap.String("symbol", s), zap.Error(err))
			continue
		}
		f, err := EncodeRecord(rec, h.opts.Now())
		if err != nil {
			continue
		}
		out[s] = f
	}
	return out
}

func (h *Hub) overflow(s *Subscription) {
	wsmetrics.DroppedTotal.WithLabelValues("queue_full").Inc()
	h.remove(s, "queue_full")
}

func (h *Hub) remove(sub *Subscription, reason string) {
	h.mu.Lock()
	_, live := h.all[sub]
	if live {
		delete(h.all, sub)
		sub.mu.Lock()
		for s := range sub.symbols {
			if set := h.subs[s]; set != nil {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, s)
				}
			}
		}
		sub.mu.Unlock()
	}
	h.mu.Unlock()

	if !live {
		return
	}
	sub.shutdown()
	wsmetrics.OnClose(reason)
	logger.Debug(context.Background(), "subscriber removed", zap.String("sub", sub.id), zap.String("reason", reason))
}
