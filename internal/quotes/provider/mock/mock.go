package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

// reference previous closes
var basePrices = map[string]float64{
	model.SymbolXAUUSD: 2033.20,
	model.SymbolGC:     2043.10,
	model.SymbolGLD:    188.35,
	model.SymbolGOLD:   17.42,
}

// Client is the synthetic fallback. It supports every symbol and never fails;
// its output depends only on the clock reading.
type Client struct {
	now func() time.Time
}

func New(now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{now: now}
}

func (c *Client) Name() string { return provider.MockName }

func (c *Client) Supports(symbol string) bool {
	_, ok := model.NormalizeSymbol(symbol)
	return ok
}

func (c *Client) Fetch(_ context.Context, symbol string) (model.PriceRecord, error) {
	sym, ok := model.NormalizeSymbol(symbol)
	if !ok {
		// unreachable through the chain, which checks Supports first
		sym = model.DefaultSymbol
	}
	return Quote(sym, c.now()), nil
}

// Quote derives a record from the reference price with a slow intraday swing.
func Quote(sym string, at time.Time) model.PriceRecord {
	at = at.UTC()
	prev := basePrices[sym]
	phase := float64(seed(sym, "") % 628) / 100
	swing := math.Sin(float64(at.Unix())/900 + phase)

	price := model.Round2(prev * (1 + 0.006*swing))
	open := model.Round2(prev * (1 + 0.002*math.Cos(phase)))
	high := math.Max(price, open)
	low := math.Min(price, open)
	high = model.Round2(math.Max(high, prev*(1+0.0065)))
	low = model.Round2(math.Min(low, prev*(1-0.0065)))
	change := model.Round2(price - prev)

	return model.PriceRecord{
		Symbol:        sym,
		Price:         price,
		Change:        change,
		ChangePercent: model.PercentOf(change, prev),
		Open:          model.F(open),
		High:          model.F(high),
		Low:           model.F(low),
		PreviousClose: model.F(prev),
		Volume:        model.F(float64(100000 + seed(sym, at.Format(model.DateLayout))%50000)),
		Source:        model.SourceMock,
		LastUpdate:    at.Truncate(time.Second),
	}
}

// Bars generates days daily candles ending at end, most recent first. The
// newest close sits near anchor; anchor <= 0 uses the reference price.
func (c *Client) Bars(symbol string, days int, anchor float64, end time.Time) []model.Bar {
	return Bars(symbol, days, anchor, end)
}

func Bars(symbol string, days int, anchor float64, end time.Time) []model.Bar {
	if days <= 0 {
		return nil
	}
	if anchor <= 0 {
		anchor = basePrices[symbol]
		if anchor <= 0 {
			anchor = basePrices[model.DefaultSymbol]
		}
	}
	end = end.UTC().Truncate(24 * time.Hour)

	out := make([]model.Bar, 0, days)
	for i := 0; i < days; i++ {
		date := end.AddDate(0, 0, -i).Format(model.DateLayout)
		out = append(out, BarFor(symbol, date, anchor, i))
	}
	return out
}

// BarFor is the candle for one date, i days before the anchor date.
func BarFor(symbol, date string, anchor float64, i int) model.Bar {
	r := rand.New(rand.NewSource(int64(seed(symbol, date))))
	// drift away from the anchor the further back we go
	base := anchor * (1 + 0.004*math.Sin(float64(i)/3) + (r.Float64()-0.5)*0.004)
	spread := anchor * 0.004

	open := base + (r.Float64()-0.5)*spread
	cl := base + (r.Float64()-0.5)*spread
	if i == 0 {
		cl = anchor
	}
	high := math.Max(open, cl) + r.Float64()*spread
	low := math.Min(open, cl) - r.Float64()*spread

	return model.Bar{
		Date:   date,
		Open:   model.Round2(open),
		High:   model.Round2(high),
		Low:    model.Round2(low),
		Close:  model.Round2(cl),
		Volume: int64(50000 + r.Intn(150000)),
	}
}

func seed(sym, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sym))
	_, _ = h.Write([]byte(salt))
	return h.Sum64()
}
