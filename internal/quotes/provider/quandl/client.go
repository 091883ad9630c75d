package quandl

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

const (
	Name       = "quandl"
	DefaultURL = "https://data.nasdaq.com"
)

var datasets = map[string]string{
	model.SymbolXAUUSD: "LBMA/GOLD",
	model.SymbolGC:     "CHRIS/CME_GC1",
}

type Client struct {
	opts provider.Options
}

func New(opts provider.Options) *Client {
	return &Client{opts: opts.WithDefaults(DefaultURL)}
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(symbol string) bool {
	_, ok := datasets[symbol]
	return ok
}

type datasetResp struct {
	Dataset dataset `json:"dataset"`
}

// dataset rows are newest first
type dataset struct {
	ColumnNames []string            `json:"column_names"`
	Data        [][]json.RawMessage `json:"data"`
}

// row is one dataset row indexed by column name.
type row map[string]json.RawMessage

func (r row) num(cols ...string) (float64, bool) {
	for _, col := range cols {
		raw, ok := r[col]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var v float64
		if json.Unmarshal(raw, &v) == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func (c *Client) Fetch(ctx context.Context, symbol string) (model.PriceRecord, error) {
	code, ok := datasets[symbol]
	if !ok {
		return model.PriceRecord{}, provider.NewError(Name, provider.KindSymbolUnsupported, nil)
	}
	if c.opts.APIKey == "" {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindUnauthorized, "api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("rows", "2")
	q.Set("api_key", c.opts.APIKey)
	var resp datasetResp
	if err := provider.GetJSON(ctx, c.opts.HTTP, Name, provider.BuildURL(c.opts.BaseURL, "/api/v3/datasets/"+code+".json", q), nil, &resp); err != nil {
		return model.PriceRecord{}, err
	}

	rows := resp.Dataset.rows()
	if len(rows) == 0 {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "no rows in %s", code)
	}
	if symbol == model.SymbolXAUUSD {
		return c.fixing(rows)
	}
	return c.futures(rows)
}

// LBMA fixing: USD (PM), falling back to USD (AM)
func (c *Client) fixing(rows []row) (model.PriceRecord, error) {
	price, ok := rows[0].num("USD (PM)", "USD (AM)")
	if !ok {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "no USD fixing")
	}
	rec := model.PriceRecord{
		Symbol:     model.SymbolXAUUSD,
		Price:      model.Round2(price),
		Source:     model.SourceQuandl,
		LastUpdate: c.date(rows[0]),
	}
	if len(rows) > 1 {
		if prev, ok := rows[1].num("USD (PM)", "USD (AM)"); ok {
			c.withChange(&rec, prev)
		}
	}
	return rec, nil
}

func (c *Client) futures(rows []row) (model.PriceRecord, error) {
	price, ok := rows[0].num("Settle", "Last")
	if !ok {
		return model.PriceRecord{}, provider.Errorf(Name, provider.KindMalformed, "no settle price")
	}
	rec := model.PriceRecord{
		Symbol:     model.SymbolGC,
		Price:      model.Round2(price),
		Source:     model.SourceQuandl,
		LastUpdate: c.date(rows[0]),
	}
	if v, ok := rows[0].num("Open"); ok {
		rec.Open = model.F(v)
	}
	hi, okH := rows[0].num("High")
	lo, okL := rows[0].num("Low")
	if okH && okL && hi >= lo {
		rec.High, rec.Low = model.F(hi), model.F(lo)
	}
	if v, ok := rows[0].num("Volume"); ok {
		rec.Volume = model.F(v)
	}
	if len(rows) > 1 {
		if prev, ok := rows[1].num("Settle", "Last"); ok {
			c.withChange(&rec, prev)
		}
	}
	return rec, nil
}

func (c *Client) withChange(rec *model.PriceRecord, prev float64) {
	rec.PreviousClose = model.F(prev)
	rec.Change = model.Round2(rec.Price - prev)
	rec.ChangePercent = model.PercentOf(rec.Change, prev)
}

func (c *Client) date(r row) time.Time {
	var s string
	if raw, ok := r["Date"]; ok && json.Unmarshal(raw, &s) == nil {
		if t, err := time.ParseInLocation(model.DateLayout, s, time.UTC); err == nil {
			return t
		}
	}
	return c.opts.Now().UTC()
}

func (d dataset) rows() []row {
	out := make([]row, 0, len(d.Data))
	for _, vals := range d.Data {
		r := make(row, len(vals))
		for i, v := range vals {
			if i < len(d.ColumnNames) {
				r[strings.TrimSpace(d.ColumnNames[i])] = v
			}
		}
		out = append(out, r)
	}
	return out
}
