package aggregate

import (
	"github.com/shopspring/decimal"

	"quoteengine/internal/quote"
)

// Counts are the per-batch totals.
// Succeeded counts every non-failed result, Cached every result served from cache.
type Counts struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cached    int `json:"cached"`
}

// Tally counts results.
func Tally(results []quote.Result) Counts {
	c := Counts{Requested: len(results)}
	for _, r := range results {
		if r.Status == quote.StatusFailed {
			c.Failed++
		} else {
			c.Succeeded++
		}
		if r.FromCache {
			c.Cached++
		}
	}
	return c
}

// Row is a display-ready view of one result.
// Stale rows show the last-known price; failed rows without one show no price at all.
type Row struct {
	Symbol        string           `json:"symbol"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"change_percent,omitempty"`
	Stale         bool             `json:"stale"`
	AsOf          int64            `json:"as_of,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Display maps results to rows, keeping order.
func Display(results []quote.Result) []Row {
	out := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{Symbol: r.Symbol}
		switch {
		case r.Quote != nil:
			price, chg, pct := r.Quote.Price, r.Quote.Change, r.Quote.ChangePercent
			row.Price, row.Change, row.ChangePercent = &price, &chg, &pct
			row.AsOf = r.Quote.Timestamp
		case r.LastKnownPrice != nil:
			price := *r.LastKnownPrice
			row.Price = &price
			row.Stale = true
			row.AsOf = r.LastKnownAt
		default:
			row.Error = string(r.Reason)
		}
		out = append(out, row)
	}
	return out
}
