package provider

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/metrics"
	"goldex.com/pkg/ratelimit"
)

// BreakerSuccess is the gobreaker IsSuccessful classifier for providers:
// unsupported symbols and caller cancellation say nothing about upstream health.
func BreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrSymbolUnsupported) ||
		errors.Is(err, context.Canceled)
}

type breakerClient struct {
	Client
	cb *gobreaker.CircuitBreaker[struct{}]
}

// WithBreaker guards c with the breaker named after it in m. m should be
// built with BreakerSuccess.
func WithBreaker(c Client, m *ratelimit.Manager) Client {
	return &breakerClient{Client: c, cb: m.Get(c.Name())}
}

func (b *breakerClient) Fetch(ctx context.Context, symbol string) (model.PriceRecord, error) {
	if !b.Supports(symbol) {
		return model.PriceRecord{}, NewError(b.Name(), KindSymbolUnsupported, nil)
	}

	var rec model.PriceRecord
	_, err := b.cb.Execute(func() (struct{}, error) {
		r, err := b.Client.Fetch(ctx, symbol)
		rec = r
		return struct{}{}, err
	})
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(b.Name(), b.cb.State().String()).Inc()
		return model.PriceRecord{}, NewError(b.Name(), KindUnavailable, err)
	}
	return model.PriceRecord{}, err
}
