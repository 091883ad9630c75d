package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/metrics"
)

// Chain tries its clients in order and returns the first success.
type Chain struct {
	clients []Client
}

// NewChain keeps the given order except that the mock client, when present,
// is moved to the end.
func NewChain(clients ...Client) *Chain {
	ordered := make([]Client, 0, len(clients))
	var tail []Client
	for _, c := range clients {
		if c == nil {
			continue
		}
		if c.Name() == MockName {
			tail = append(tail, c)
			continue
		}
		ordered = append(ordered, c)
	}
	return &Chain{clients: append(ordered, tail...)}
}

func (c *Chain) Names() []string {
	out := make([]string, len(c.clients))
	for i, cl := range c.clients {
		out[i] = cl.Name()
	}
	return out
}

// Resolve returns the first successful record. When every client fails the
// error is an *ExhaustedError carrying the failures in order.
func (c *Chain) Resolve(ctx context.Context, symbol string) (model.PriceRecord, error) {
	exh := &ExhaustedError{Symbol: symbol}

	for _, cl := range c.clients {
		if err := ctx.Err(); err != nil {
			exh.Failures = append(exh.Failures, Failure{Provider: cl.Name(), Err: NewError(cl.Name(), KindTimeout, err)})
			break
		}
		if !cl.Supports(symbol) {
			exh.Failures = append(exh.Failures, Failure{
				Provider: cl.Name(),
				Err:      NewError(cl.Name(), KindSymbolUnsupported, nil),
			})
			metrics.ProviderRequests.WithLabelValues(cl.Name(), KindSymbolUnsupported.String()).Inc()
			continue
		}

		start := time.Now()
		rec, err := cl.Fetch(ctx, symbol)
		metrics.ProviderLatency.WithLabelValues(cl.Name()).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(cl.Name(), "ok").Inc()
			return rec, nil
		}

		kind := KindOf(err)
		metrics.ProviderRequests.WithLabelValues(cl.Name(), kind.String()).Inc()
		logger.Warn(ctx, "provider fetch failed",
			zap.String("provider", cl.Name()),
			zap.String("symbol", symbol),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		exh.Failures = append(exh.Failures, Failure{Provider: cl.Name(), Err: err})
	}

	metrics.ChainExhausted.WithLabelValues(symbol).Inc()
	return model.PriceRecord{}, exh
}
