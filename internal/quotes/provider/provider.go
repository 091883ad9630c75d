package provider

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"goldex.com/internal/quotes/model"
)

// MockName is the configured name of the synthetic client; the chain
// always places it last.
const MockName = "mock"

const DefaultTimeout = 10 * time.Second

// Client wraps one upstream quote source.
type Client interface {
	Name() string
	Supports(symbol string) bool
	// Fetch returns a normalized record or a *Error.
	Fetch(ctx context.Context, symbol string) (model.PriceRecord, error)
}

// HTTPDoer is satisfied by *http.Client; tests swap it out.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options are shared by the HTTP-backed clients.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	HTTP    HTTPDoer
	Now     func() time.Time
}

// WithDefaults fills zero fields; baseURL is the provider's public endpoint.
func (o Options) WithDefaults(baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTP == nil {
		o.HTTP = NewHTTPClient()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewHTTPClient builds the pooled client shared by providers. Per-call
// deadlines come from the request context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
