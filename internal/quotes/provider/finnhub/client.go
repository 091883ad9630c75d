package finnhub

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

const (
	Name       = "finnhub"
	DefaultURL = "https://finnhub.io"
)

var upstreamSymbol = map[string]string{
	model.SymbolXAUUSD: "OANDA:XAU_USD",
	model.SymbolGLD:    "GLD",
	model.SymbolGOLD:   "GOLD",
}

type Client struct {
	opts provider.Options
}

func New(opts provider.Options) *Client {
	return &Client{opts: opts.WithDefaults(DefaultURL)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(symbol string) bool {
	_, ok := upstreamSymbol[symbol]
	return ok
}

type quoteResp struct {
	C  float64 `json:"c"`  // current
	D  float64 `json:"d"`  // change
	DP float64 `json:"dp"` // change percent
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"` // previous close
	T  int64   `json:"t"`
}

func (c *Client) Fetch(ctx context.Context, symbol string) (model.PriceRecord, error) {
	up, ok := upstreamSymbol[symbol]
	if !ok {
		return model.PriceRecord{}, provider.NewError(Name, provider.KindSymbolUnsupported, nil)
	}
	if c.opts.APIKey == "" {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindUnauthorized, "api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("symbol", up)
	h := http.Header{}
	h.Set("X-Finnhub-Token", c.opts.APIKey)

	var resp quoteResp
	if err := provider.GetJSON(ctx, c.opts.HTTP, Name, provider.BuildURL(c.opts.BaseURL, "/api/v1/quote", q), h, &resp); err != nil {
		return model.PriceRecord{}, err
	}
	// unknown symbols come back as an all-zero quote
	if resp.C <= 0 {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "empty quote for %s", up)
	}

	change, pct := resp.D, resp.DP
	if change == 0 && resp.PC > 0 {
		change = model.Round2(resp.C - resp.PC)
		pct = model.PercentOf(change, resp.PC)
	}
	rec := model.PriceRecord{
		Symbol:        symbol,
		Price:         model.Round2(resp.C),
		Change:        model.Round2(change),
		ChangePercent: model.Round2(pct),
		Source:        model.SourceFinnhub,
		LastUpdate:    c.opts.Now().UTC(),
	}
	if resp.T > 0 {
		rec.LastUpdate = time.Unix(resp.T, 0).UTC()
	}
	if resp.O > 0 {
		rec.Open = model.F(resp.O)
	}
	if resp.H > 0 && resp.L > 0 {
		rec.High = model.F(resp.H)
		rec.Low = model.F(resp.L)
	}
	if resp.PC > 0 {
		rec.PreviousClose = model.F(resp.PC)
	}
	return rec, nil
}
