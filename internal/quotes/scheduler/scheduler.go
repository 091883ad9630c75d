package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"goldex.com/internal/quotes/cache"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/metrics"
	"goldex.com/pkg/safe"
)

const DefaultInterval = 30 * time.Second

type Resolver interface {
	Resolve(ctx context.Context, symbol string) (model.PriceRecord, error)
}

// UpdateListener is notified after every successful cache write.
type UpdateListener interface {
	Name() string
	OnUpdate(ctx context.Context, rec model.PriceRecord) error
}

// Scheduler refreshes every symbol on a fixed period. At most one fetch per
// symbol is in flight; a tick that finds one running skips that symbol.
type Scheduler struct {
	resolver  Resolver
	cache     *cache.PriceCache
	symbols   []string
	interval  time.Duration
	listeners []UpdateListener

	inflight map[string]*atomic.Bool
	wg       sync.WaitGroup
}

func New(r Resolver, c *cache.PriceCache, symbols []string, interval time.Duration, listeners ...UpdateListener) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	inflight := make(map[string]*atomic.Bool, len(symbols))
	for _, s := range symbols {
		inflight[s] = new(atomic.Bool)
	}
	return &Scheduler{
		resolver:  r,
		cache:     c,
		symbols:   append([]string(nil), symbols...),
		interval:  interval,
		listeners: listeners,
		inflight:  inflight,
	}
}

// AddListener must be called before Run.
func (s *Scheduler) AddListener(l UpdateListener) {
	s.listeners = append(s.listeners, l)
}

// Run ticks immediately, then every interval, until ctx is done. It waits
// for in-flight fetches before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "refresh scheduler started",
		zap.Duration("interval", s.interval),
		zap.Strings("symbols", s.symbols),
	)
	t := time.NewTicker(s.interval)
	defer func() {
		t.Stop()
		s.wg.Wait()
		logger.Info(context.Background(), "refresh scheduler stopped")
	}()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts a fetch for every symbol that has none in flight and returns
// how many were started. It does not wait for them.
func (s *Scheduler) Tick(ctx context.Context) int {
	metrics.SchedulerTicks.Inc()
	started := 0
	for _, sym := range s.symbols {
		busy := s.inflight[sym]
		if !busy.CompareAndSwap(false, true) {
			metrics.SchedulerSkipped.WithLabelValues(sym).Inc()
			logger.Debug(ctx, "refresh skipped, previous fetch in flight", zap.String("symbol", sym))
			continue
		}
		started++
		s.wg.Add(1)
		safe.GoCtx(ctx, func(ctx context.Context) {
			defer s.wg.Done()
			defer busy.Store(false)
			s.refresh(ctx, sym)
		})
	}
	return started
}

// Wait blocks until every fetch started so far has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) refresh(ctx context.Context, sym string) {
	rec, err := s.resolver.Resolve(ctx, sym)
	if err != nil {
		// 保留旧值：stale-but-available
		metrics.SchedulerFailures.WithLabelValues(sym).Inc()
		logger.Warn(ctx, "refresh failed, keeping previous value",
			zap.String("symbol", sym),
			zap.Error(err),
		)
		return
	}
	s.cache.Set(sym, rec)
	s.notify(ctx, rec)
}

func (s *Scheduler) notify(ctx context.Context, rec model.PriceRecord) {
	for _, l := range s.listeners {
		func() {
			defer safe.Recover(ctx, "listener "+l.Name())
			if err := l.OnUpdate(ctx, rec); err != nil {
				metrics.ListenerErrors.WithLabelValues(l.Name()).Inc()
				logger.Warn(ctx, "update listener failed",
					zap.String("listener", l.Name()),
					zap.String("symbol", rec.Symbol),
					zap.Error(err),
				)
			}
		}()
	}
}
