package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"goldex.com/internal/quotes/cache"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
	"goldex.com/internal/quotes/provider/mock"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/xerr"
)

const (
	DefaultDays = 7
	MaxDays     = 365
)

type Resolver interface {
	Resolve(ctx context.Context, symbol string) (model.PriceRecord, error)
}

// BarStore is the optional durable history. Dates are YYYY-MM-DD, inclusive.
type BarStore interface {
	Range(ctx context.Context, symbol, from, to string) ([]model.Bar, error)
	Upsert(ctx context.Context, symbol string, bars []model.Bar) error
}

type Service struct {
	cache    *cache.PriceCache
	resolver Resolver
	store    BarStore
	now      func() time.Time
	maxDays  int

	sf singleflight.Group
}

type Option func(*Service)

func WithBarStore(s BarStore) Option { return func(q *Service) { q.store = s } }

func WithClock(now func() time.Time) Option { return func(q *Service) { q.now = now } }

func WithMaxDays(n int) Option {
	return func(q *Service) {
		if n > 0 {
			q.maxDays = n
		}
	}
}

func New(c *cache.PriceCache, r Resolver, opts ...Option) *Service {
	s := &Service{cache: c, resolver: r, now: time.Now, maxDays: MaxDays}
	for _, o := range opts {
		o(s)
	}
	return s
}

func unsupported(raw string) error {
	return xerr.New(xerr.SymbolUnsupported, fmt.Sprintf(
		"Unsupported symbol: %s. Supported symbols: %s", raw, strings.Join(model.SymbolList(), ", ")))
}

// CurrentPrice serves from the cache regardless of age. On a miss it resolves
// through the chain once (concurrent misses share the call), stores the
// result and reports cached=false.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (model.PriceRecord, bool, error) {
	sym, ok := model.NormalizeSymbol(symbol)
	if !ok {
		return model.PriceRecord{}, false, unsupported(symbol)
	}
	if e, ok := s.cache.Get(sym); ok {
		return e.Record, true, nil
	}

	v, err, _ := s.sf.Do(sym, func() (interface{}, error) {
		// another caller may have filled it while we queued
		if e, ok := s.cache.Get(sym); ok {
			return e.Record, nil
		}
		// shared by every waiter, so one caller going away must not fail the rest
		rec, err := s.resolver.Resolve(context.WithoutCancel(ctx), sym)
		if err != nil {
			return nil, err
		}
		s.cache.Set(sym, rec)
		return rec, nil
	})
	if err != nil {
		var exh *provider.ExhaustedError
		if errors.As(err, &exh) {
			return model.PriceRecord{}, false, xerr.Wrap(err, xerr.AllProvidersExhausted, xerr.MapErrMsg(xerr.AllProvidersExhausted))
		}
		return model.PriceRecord{}, false, xerr.Wrap(err, xerr.Unavailable, xerr.MapErrMsg(xerr.Unavailable))
	}
	return v.(model.PriceRecord), false, nil
}

// Snapshot implements the broadcaster's snapshot source.
func (s *Service) Snapshot(ctx context.Context, symbol string) (model.PriceRecord, error) {
	rec, _, err := s.CurrentPrice(ctx, symbol)
	return rec, err
}

// ParseDays validates the days query value; empty means DefaultDays.
func (s *Service) ParseDays(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > s.maxDays {
		return 0, xerr.New(xerr.InvalidParam, fmt.Sprintf("days must be an integer between 1 and %d", s.maxDays))
	}
	return n, nil
}

// Historical returns days daily bars, most recent first. Stored bars win;
// missing dates are generated around the current price and written back.
func (s *Service) Historical(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	sym, ok := model.NormalizeSymbol(symbol)
	if !ok {
		return nil, unsupported(symbol)
	}
	if days < 1 || days > s.maxDays {
		return nil, xerr.New(xerr.InvalidParam, fmt.Sprintf("days must be an integer between 1 and %d", s.maxDays))
	}

	anchor := 0.0
	if e, ok := s.cache.Get(sym); ok {
		anchor = e.Record.Price
	}
	end := s.now().UTC()
	generated := mock.Bars(sym, days, anchor, end)
	if s.store == nil {
		return generated, nil
	}

	from, to := generated[len(generated)-1].Date, generated[0].Date
	stored, err := s.store.Range(ctx, sym, from, to)
	if err != nil {
		// history store is optional: degrade to generated bars
		logger.Warn(ctx, "bar store read failed", zap.String("symbol", sym), zap.Error(err))
		return generated, nil
	}
	byDate := make(map[string]model.Bar, len(stored))
	for _, b := range stored {
		byDate[b.Date] = b
	}

	out := make([]model.Bar, 0, days)
	var missing []model.Bar
	for _, g := range generated {
		if b, ok := byDate[g.Date]; ok && b.Valid() {
			out = append(out, b)
			continue
		}
		out = append(out, g)
		missing = append(missing, g)
	}
	// today's bar moves with the price, keep it out of the store
	if len(missing) > 0 && missing[0].Date == to {
		missing = missing[1:]
	}
	if len(missing) > 0 {
		if err := s.store.Upsert(ctx, sym, missing); err != nil {
			logger.Warn(ctx, "bar store write failed", zap.String("symbol", sym), zap.Int("bars", len(missing)), zap.Error(err))
		}
	}
	return out, nil
}
