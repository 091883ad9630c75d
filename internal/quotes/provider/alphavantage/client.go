// Package alphavantage reads spot XAU/USD and ETF quotes from Alpha Vantage.
package alphavantage

import (
	"context"
	"net/url"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

const (
	Name       = "alphavantage"
	DefaultURL = "https://www.alphavantage.co"
)

type Client struct {
	opts provider.Options
}

func New(opts provider.Options) *Client {
	return &Client{opts: opts.WithDefaults(DefaultURL)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(symbol string) bool {
	switch symbol {
	case model.SymbolXAUUSD, model.SymbolGLD, model.SymbolGOLD:
		return true
	}
	return false
}

// envelope fields Alpha Vantage returns with HTTP 200 instead of data
type notice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n notice) err() error {
	switch {
	case n.Note != "":
		return provider.Errorf(Name, provider.KindRateLimited, "%s", n.Note)
	case n.Information != "":
		return provider.Errorf(Name, provider.KindRateLimited, "%s", n.Information)
	case n.ErrorMessage != "":
		return provider.Errorf(Name, provider.KindMalformed, "%s", n.ErrorMessage)
	}
	return nil
}

type exchangeRateResp struct {
	notice
	Rate struct {
		From        string `json:"1. From_Currency Code"`
		To          string `json:"3. To_Currency Code"`
		Rate        string `json:"5. Exchange Rate"`
		LastRefresh string `json:"6. Last Refreshed"`
		Bid         string `json:"8. Bid Price"`
		Ask         string `json:"9. Ask Price"`
	} `json:"Realtime Currency Exchange Rate"`
}

type globalQuoteResp struct {
	notice
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (c *Client) Fetch(ctx context.Context, symbol string) (model.PriceRecord, error) {
	if !c.Supports(symbol) {
		return model.PriceRecord{}, provider.NewError(Name, provider.KindSymbolUnsupported, nil)
	}
	if c.opts.APIKey == "" {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindUnauthorized, "api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if symbol == model.SymbolXAUUSD {
		return c.spot(ctx)
	}
	return c.globalQuote(ctx, symbol)
}

func (c *Client) spot(ctx context.Context) (model.PriceRecord, error) {
	q := url.Values{}
	q.Set("function", "CURRENCY_EXCHANGE_RATE")
	q.Set("from_currency", "XAU")
	q.Set("to_currency", "USD")
	q.Set("apikey", c.opts.APIKey)

	var resp exchangeRateResp
	if err := provider.GetJSON(ctx, c.opts.HTTP, Name, provider.BuildURL(c.opts.BaseURL, "/query", q), nil, &resp); err != nil {
		return model.PriceRecord{}, err
	}
	if err := resp.notice.err(); err != nil {
		return model.PriceRecord{}, err
	}
	price, err := provider.ParseNum(resp.Rate.Rate)
	if err != nil || price <= 0 {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "exchange rate %q", resp.Rate.Rate)
	}

	return model.PriceRecord{
		Symbol:     model.SymbolXAUUSD,
		Price:      model.Round2(price),
		Source:     model.SourceAlphaVantage,
		LastUpdate: c.lastUpdate(resp.Rate.LastRefresh),
	}, nil
}

func (c *Client) globalQuote(ctx context.Context, symbol string) (model.PriceRecord, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.opts.APIKey)

	var resp globalQuoteResp
	if err := provider.GetJSON(ctx, c.opts.HTTP, Name, provider.BuildURL(c.opts.BaseURL, "/query", q), nil, &resp); err != nil {
		return model.PriceRecord{}, err
	}
	if err := resp.notice.err(); err != nil {
		return model.PriceRecord{}, err
	}
	gq := resp.Quote
	price, err := provider.ParseNum(gq.Price)
	if err != nil || price <= 0 {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "price %q", gq.Price)
	}

	rec := model.PriceRecord{
		Symbol:     symbol,
		Price:      model.Round2(price),
		Source:     model.SourceAlphaVantage,
		LastUpdate: c.opts.Now().UTC(),
	}
	rec.Change, _ = provider.ParseNum(gq.Change)
	rec.ChangePercent, _ = provider.ParseNum(gq.ChangePercent)
	rec.Open = optional(gq.Open)
	rec.High = optional(gq.High)
	rec.Low = optional(gq.Low)
	rec.PreviousClose = optional(gq.PreviousClose)
	rec.Volume = optional(gq.Volume)
	return rec, nil
}

func (c *Client) lastUpdate(s string) time.Time {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return t
	}
	return c.opts.Now().UTC()
}

func optional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := provider.ParseNum(s)
	if err != nil {
		return nil
	}
	return model.F(v)
}
