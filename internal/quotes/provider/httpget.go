package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

const maxBody = 1 << 20

// GetJSON issues a GET and decodes the body into out, classifying every
// failure into a *Error for provider name.
func GetJSON(ctx context.Context, doer HTTPDoer, name, rawURL string, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return NewError(name, KindUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "goldex/1.0")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := doer.Do(req)
	if err != nil {
		return classifyTransport(ctx, name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Errorf(name, KindUnauthorized, "status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return Errorf(name, KindRateLimited, "status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Errorf(name, KindUnavailable, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return classifyTransport(ctx, name, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(name, KindMalformed, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func classifyTransport(ctx context.Context, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewError(name, KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(name, KindTimeout, err)
	}
	return NewError(name, KindUnavailable, err)
}

// BuildURL joins base+path with the given query.
func BuildURL(base, path string, q url.Values) string {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// ParseNum parses upstream numeric strings such as "2045.5000" or "0.6000%".
func ParseNum(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
