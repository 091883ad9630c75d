package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"goldex.com/internal/quotes/model"
)

type limitedClient struct {
	Client
	lim *rate.Limiter
}

// WithRateLimit caps c at perMinute calls with the given burst. A call with
// no token available fails immediately with KindRateLimited so the chain
// can move on. perMinute <= 0 returns c unchanged.
func WithRateLimit(c Client, perMinute, burst int) Client {
	if perMinute <= 0 {
		return c
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedClient{
		Client: c,
		lim:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (l *limitedClient) Fetch(ctx context.Context, symbol string) (model.PriceRecord, error) {
	if !l.Supports(symbol) {
		return model.PriceRecord{}, NewError(l.Name(), KindSymbolUnsupported, nil)
	}
	if !l.lim.Allow() {
		return model.PriceRecord{}, Errorf(l.Name(), KindRateLimited, "local budget exhausted")
	}
	return l.Client.Fetch(ctx, symbol)
}
