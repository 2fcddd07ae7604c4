package httpquote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"quoteengine/internal/provider"
)

// payload is the upstream quote body.
//
//	{
//	  "symbol": "AAPL",
//	  "price": 189.84,
//	  "change": 1.25,
//	  "change_percent": 0.66,
//	  "high": 190.3,
//	  "low": 187.9,
//	  "open": 188.1,
//	  "prev_close": 188.59,
//	  "timestamp": 1735808400
//	}
type payload struct {
	Symbol        string           `json:"symbol"`
	Price         *decimal.Decimal `json:"price"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent decimal.Decimal  `json:"change_percent"`
	High          decimal.Decimal  `json:"high"`
	Low           decimal.Decimal  `json:"low"`
	Open          decimal.Decimal  `json:"open"`
	PrevClose     decimal.Decimal  `json:"prev_close"`
	Timestamp     int64            `json:"timestamp"`
}

// Fetch retrieves the quote for one symbol and tags every failure with a provider.Reason.
func (c *Client) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	query := maps.Clone(c.query)
	query.Set("symbol", symbol)

	url := fmt.Sprintf("%s/v1/quote?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return provider.Quote{}, provider.Wrap(provider.ReasonProviderError, symbol, fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return provider.Quote{}, provider.Wrap(provider.ReasonTimeout, symbol, fmt.Errorf("%s: performing request: %w", c.name, err))
		}
		return provider.Quote{}, provider.Wrap(provider.ReasonProviderError, symbol, fmt.Errorf("%s: performing request: %w", c.name, err))
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusTooManyRequests:
		return provider.Quote{}, provider.Errorf(provider.ReasonRateLimited, symbol, "%s: rate limited", c.name)
	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return provider.Quote{}, provider.Errorf(provider.ReasonProviderError, symbol, "%s: unexpected status code %d: %s", c.name, res.StatusCode, strings.TrimSpace(string(b)))
	}

	var body payload
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		if ctx.Err() != nil {
			return provider.Quote{}, provider.Wrap(provider.ReasonTimeout, symbol, ctx.Err())
		}
		return provider.Quote{}, provider.Wrap(provider.ReasonParseError, symbol, fmt.Errorf("%s: decoding quote: %w", c.name, err))
	}
	if body.Price == nil {
		return provider.Quote{}, provider.Errorf(provider.ReasonParseError, symbol, "%s: quote without price", c.name)
	}
	if body.Symbol != "" && !strings.EqualFold(body.Symbol, symbol) {
		return provider.Quote{}, provider.Errorf(provider.ReasonParseError, symbol, "%s: quote for %q", c.name, body.Symbol)
	}

	return provider.Quote{
		Symbol:        symbol,
		Price:         *body.Price,
		Change:        body.Change,
		ChangePercent: body.ChangePercent,
		High:          body.High,
		Low:           body.Low,
		Open:          body.Open,
		PrevClose:     body.PrevClose,
		Timestamp:     body.Timestamp,
	}, nil
}
