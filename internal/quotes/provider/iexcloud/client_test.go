package iexcloud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

func TestFetch_ScalesChangePercent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/stock/GLD/quote", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"symbol":"GLD","latestPrice":188.75,"change":1.75,"changePercent":0.00936,
			"open":187.1,"high":189,"low":186.9,"previousClose":187,"latestVolume":7000000,"latestUpdate":1772461800000}`))
	}))
	defer srv.Close()

	rec, err := New(provider.Options{APIKey: "k", BaseURL: srv.URL}).Fetch(context.Background(), model.SymbolGLD)
	require.NoError(t, err)
	assert.Equal(t, 188.75, rec.Price)
	assert.Equal(t, 0.94, rec.ChangePercent)
	assert.Equal(t, model.SourceIEXCloud, rec.Source)
	require.NotNil(t, rec.Volume)
	assert.Equal(t, 7000000.0, *rec.Volume)
	assert.Equal(t, int64(1772461800), rec.LastUpdate.Unix())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"zero price", 200, `{"latestPrice":0}`, provider.ErrMalformed},
		{"not json", 200, `Unknown symbol`, provider.ErrMalformed},
		{"forbidden", 403, ``, provider.ErrUnauthorized},
		{"throttled", 429, ``, provider.ErrRateLimited},
		{"down", 503, ``, provider.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := New(provider.Options{APIKey: "k", BaseURL: srv.URL}).Fetch(context.Background(), model.SymbolGOLD)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetch_SpotUnsupported(t *testing.T) {
	_, err := New(provider.Options{APIKey: "k"}).Fetch(context.Background(), model.SymbolXAUUSD)
	assert.ErrorIs(t, err, provider.ErrSymbolUnsupported)
}
