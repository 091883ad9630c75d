package model

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 支持的品种 (closed set)
const (
	SymbolGC     = "GC"
	SymbolXAUUSD = "XAUUSD"
	SymbolGOLD   = "GOLD"
	SymbolGLD    = "GLD"

	DefaultSymbol = SymbolXAUUSD
)

var displayNames = map[string]string{
	SymbolGC:     "Gold Futures (COMEX)",
	SymbolXAUUSD: "Gold Spot Price (USD)",
	SymbolGOLD:   "Gold ETF",
	SymbolGLD:    "SPDR Gold Trust",
}

// 数据来源
const (
	SourceAlphaVantage = "Alpha Vantage"
	SourceFinnhub      = "Finnhub"
	SourceIEXCloud     = "IEX Cloud"
	SourceQuandl       = "Quandl"
	SourceMock         = "Mock Data"
)

// NormalizeSymbol trims and upper-cases s; ok is false for symbols outside
// the supported set.
func NormalizeSymbol(s string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	_, ok := displayNames[sym]
	return sym, ok
}

func DisplayName(sym string) string { return displayNames[sym] }

// Symbols returns code -> display name; the map is a fresh copy.
func Symbols() map[string]string {
	out := make(map[string]string, len(displayNames))
	for k, v := range displayNames {
		out[k] = v
	}
	return out
}

// SymbolList is the sorted list of supported codes.
func SymbolList() []string {
	out := make([]string, 0, len(displayNames))
	for k := range displayNames {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PriceRecord is an immutable quote snapshot. Optional fields are nil when
// the upstream does not report them.
type PriceRecord struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Open          *float64  `json:"open,omitempty"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	PreviousClose *float64  `json:"previousClose,omitempty"`
	Volume        *float64  `json:"volume,omitempty"`
	Source        string    `json:"source"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// Bar is one daily OHLCV candle. Date is YYYY-MM-DD.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

const DateLayout = "2006-01-02"

func F(v float64) *float64 { return &v }

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// PercentOf returns change / base * 100, rounded to 2 decimals; 0 when base is 0.
func PercentOf(change, base float64) float64 {
	if base == 0 {
		return 0
	}
	p, _ := decimal.NewFromFloat(change).
		Div(decimal.NewFromFloat(base)).
		Mul(decimal.NewFromInt(100)).
		Round(2).Float64()
	return p
}

// Consistent reports whether changePercent agrees with change/previousClose
// within eps and high >= low, for the fields that are present.
func (r PriceRecord) Consistent(eps float64) bool {
	if r.High != nil && r.Low != nil && *r.High < *r.Low {
		return false
	}
	if r.PreviousClose != nil && *r.PreviousClose != 0 {
		want := r.Change / *r.PreviousClose * 100
		if math.Abs(want-r.ChangePercent) > eps {
			return false
		}
	}
	return true
}

// Valid reports whether b satisfies low <= open, close <= high.
func (b Bar) Valid() bool {
	return b.Low <= b.Open && b.Low <= b.Close && b.Open <= b.High && b.Close <= b.High
}
