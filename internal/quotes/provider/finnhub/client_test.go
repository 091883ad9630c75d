package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
)

func TestFetch_SpotMapsToOanda(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/quote", r.URL.Path)
		assert.Equal(t, "OANDA:XAU_USD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.Header.Get("X-Finnhub-Token"))
		_, _ = w.Write([]byte(`{"c":2045.5,"d":12.3,"dp":0.605,"h":2050,"l":2035,"o":2040,"pc":2033.2,"t":1772461800}`))
	}))
	defer srv.Close()

	rec, err := New(provider.Options{APIKey: "k", BaseURL: srv.URL}).Fetch(context.Background(), model.SymbolXAUUSD)
	require.NoError(t, err)
	assert.Equal(t, model.SymbolXAUUSD, rec.Symbol)
	assert.Equal(t, 2045.5, rec.Price)
	assert.Equal(t, 12.3, rec.Change)
	assert.Equal(t, 0.61, rec.ChangePercent)
	assert.Equal(t, time.Unix(1772461800, 0).UTC(), rec.LastUpdate)
	assert.Equal(t, model.SourceFinnhub, rec.Source)
	assert.True(t, rec.Consistent(0.01))
}

func TestFetch_DerivesChangeFromPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":190,"pc":200}`))
	}))
	defer srv.Close()

	rec, err := New(provider.Options{APIKey: "k", BaseURL: srv.URL}).Fetch(context.Background(), model.SymbolGLD)
	require.NoError(t, err)
	assert.Equal(t, -10.0, rec.Change)
	assert.Equal(t, -5.0, rec.ChangePercent)
	assert.Nil(t, rec.High)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"all zero quote", 200, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`, provider.ErrMalformed},
		{"unauthorized", 401, `{"error":"Invalid API key"}`, provider.ErrUnauthorized},
		{"rate limited", 429, `{"error":"API limit reached"}`, provider.ErrRateLimited},
		{"bad gateway", 502, ``, provider.ErrUnavailable},
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

func TestFetch_UnsupportedAndMissingKey(t *testing.T) {
	c := New(provider.Options{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	assert.False(t, c.Supports(model.SymbolGC))
	_, err := c.Fetch(context.Background(), model.SymbolGC)
	assert.ErrorIs(t, err, provider.ErrSymbolUnsupported)

	_, err = New(provider.Options{BaseURL: "http://127.0.0.1:1"}).Fetch(context.Background(), model.SymbolGLD)
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}
