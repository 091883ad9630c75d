package iexcloud

import (
	"context"
	"net/url"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

const (
	Name       = "iexcloud"
	DefaultURL = "https://cloud.iexapis.com"
)

type Client struct {
	opts provider.Options
}

func New(opts provider.Options) *Client {
	return &Client{opts: opts.WithDefaults(DefaultURL)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(symbol string) bool {
	return symbol == model.SymbolGLD || symbol == model.SymbolGOLD
}

type quoteResp struct {
	Symbol        string   `json:"symbol"`
	LatestPrice   float64  `json:"latestPrice"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"` // fraction, 0.006 == 0.6%
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	PreviousClose *float64 `json:"previousClose"`
	Volume        *float64 `json:"latestVolume"`
	LatestUpdate  int64    `json:"latestUpdate"` // unix ms
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

	q := url.Values{}
	q.Set("token", c.opts.APIKey)
	var resp quoteResp
	u := provider.BuildURL(c.opts.BaseURL, "/stable/stock/"+url.PathEscape(symbol)+"/quote", q)
	if err := provider.GetJSON(ctx, c.opts.HTTP, Name, u, nil, &resp); err != nil {
		return model.PriceRecord{}, err
	}
	if resp.LatestPrice <= 0 {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "latestPrice %v", resp.LatestPrice)
	}

	rec := model.PriceRecord{
		Symbol:        symbol,
		Price:         model.Round2(resp.LatestPrice),
		Change:        model.Round2(resp.Change),
		ChangePercent: model.Round2(resp.ChangePercent * 100),
		Open:          resp.Open,
		High:          resp.High,
		Low:           resp.Low,
		PreviousClose: resp.PreviousClose,
		Volume:        resp.Volume,
		Source:        model.SourceIEXCloud,
		LastUpdate:    c.opts.Now().UTC(),
	}
	if resp.LatestUpdate > 0 {
		rec.LastUpdate = time.UnixMilli(resp.LatestUpdate).UTC()
	}
	return rec, nil
}
