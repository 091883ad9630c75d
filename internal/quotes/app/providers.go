package app

import (
	"fmt"
	"time"

	"goldex.com/internal/quotes/config"
	"goldex.com/internal/quotes/provider"
	"goldex.com/internal/quotes/provider/alphavantage"
	"goldex.com/internal/quotes/provider/finnhub"
	"goldex.com/internal/quotes/provider/iexcloud"
	"goldex.com/internal/quotes/provider/mock"
	"goldex.com/internal/quotes/provider/quandl"
	"goldex.com/pkg/ratelimit"
)

type clientFactory func(provider.Options) provider.Client

var factories = map[string]clientFactory{
	alphavantage.Name: func(o provider.Options) provider.Client { return alphavantage.New(o) },
	finnhub.Name:      func(o provider.Options) provider.Client { return finnhub.New(o) },
	iexcloud.Name:     func(o provider.Options) provider.Client { return iexcloud.New(o) },
	quandl.Name:       func(o provider.Options) provider.Client { return quandl.New(o) },
}

// BuildChain turns the configured provider list into a chain. HTTP clients
// share one pooled transport and are wrapped rate limit first, breaker outermost,
// so an open breaker never burns a token.
func BuildChain(cfg *config.Config, doer provider.HTTPDoer, now func() time.Time) (*provider.Chain, error) {
	if doer == nil {
		doer = provider.NewHTTPClient()
	}
	var breakers *ratelimit.Manager
	if cfg.Breaker.Enabled {
		breakers = ratelimit.NewManager(ratelimit.Rule{
			Interval:                cfg.Breaker.Interval,
			Timeout:                 cfg.Breaker.OpenTimeout,
			TripConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			TripFailureRate:         cfg.Breaker.FailureRate,
			TripMinRequests:         cfg.Breaker.MinRequests,
		}, nil, provider.BreakerSuccess)
	}

	var clients []provider.Client
	for _, p := range cfg.EnabledProviders() {
		if p.Name == provider.MockName {
			clients = append(clients, mock.New(now))
			continue
		}
		build, ok := factories[p.Name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", p.Name)
		}
		c := build(provider.Options{
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Timeout: p.Timeout,
			HTTP:    doer,
			Now:     now,
		})
		c = provider.WithRateLimit(c, p.RatePerMin, p.Burst)
		if breakers != nil {
			c = provider.WithBreaker(c, breakers)
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no provider enabled")
	}
	return provider.NewChain(clients...), nil
}
