// Package quote defines the per-symbol and per-batch results handed to callers.
package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quoteengine/internal/provider"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusCached  Status = "Cached"
)

// Source tags where the value in a Result came from.
type Source string

const (
	SourceProvider  Source = "Provider"
	SourceCache     Source = "Cache"
	SourceLastKnown Source = "LastKnown"
	SourceNone      Source = "None"
)

// Result is the outcome for one requested symbol.
//
// A non-failed result always carries Quote. A failed result carries either
// LastKnownPrice (Source=LastKnown) or Reason (Source=None), never both.
type Result struct {
	Symbol         string           `json:"symbol"`
	Status         Status           `json:"status"`
	Quote          *provider.Quote  `json:"quote,omitempty"`
	Reason         provider.Reason  `json:"reason,omitempty"`
	LastKnownPrice *decimal.Decimal `json:"last_known_price,omitempty"`
	LastKnownAt    int64            `json:"last_known_at,omitempty"`
	Source         Source           `json:"source"`
	FromCache      bool             `json:"from_cache"`
	FetchedAt      int64            `json:"fetched_at"`
}

// Succeeded builds a result for a fresh or TTL-cached quote.
func Succeeded(symbol string, q provider.Quote, cached bool, at time.Time) Result {
	r := Result{
		Symbol:    symbol,
		Status:    StatusSuccess,
		Quote:     &q,
		Source:    SourceProvider,
		FetchedAt: at.Unix(),
	}
	if cached {
		r.Status = StatusCached
		r.Source = SourceCache
		r.FromCache = true
	}
	return r
}

// Failure builds a failed result. When fallback is non-nil the reason is dropped
// and the stale price is carried instead.
func Failure(symbol string, reason provider.Reason, fallback *decimal.Decimal, fallbackAt time.Time, at time.Time) Result {
	r := Result{
		Symbol:    symbol,
		Status:    StatusFailed,
		FetchedAt: at.Unix(),
	}
	if fallback != nil {
		p := *fallback
		r.LastKnownPrice = &p
		r.LastKnownAt = fallbackAt.Unix()
		r.Source = SourceLastKnown
		return r
	}
	if reason == "" {
		reason = provider.ReasonUnknown
	}
	r.Reason = reason
	r.Source = SourceNone
	return r
}

// Placeholder stands in for an outcome that went missing during assembly.
func Placeholder(symbol string, at time.Time) Result {
	return Failure(symbol, provider.ReasonUnknown, nil, time.Time{}, at)
}

// Stale reports whether the result only has a last-known price to show.
func (r Result) Stale() bool {
	return r.Status == StatusFailed && r.LastKnownPrice != nil
}

// Validate checks the field invariants described on Result.
func (r Result) Validate() error {
	switch r.Status {
	case StatusSuccess, StatusCached:
		if r.Quote == nil {
			return fmt.Errorf("%s: %s result without quote", r.Symbol, r.Status)
		}
		if r.Reason != "" || r.LastKnownPrice != nil {
			return fmt.Errorf("%s: %s result carries failure fields", r.Symbol, r.Status)
		}
		if r.Status == StatusCached && r.Source != SourceCache {
			return fmt.Errorf("%s: cached result with source %s", r.Symbol, r.Source)
		}
	case StatusFailed:
		if r.Quote != nil {
			return fmt.Errorf("%s: failed result with quote", r.Symbol)
		}
		hasLKG, hasReason := r.LastKnownPrice != nil, r.Reason != ""
		if hasLKG == hasReason {
			return fmt.Errorf("%s: failed result needs exactly one of last-known price or reason", r.Symbol)
		}
		if hasLKG && r.Source != SourceLastKnown || hasReason && r.Source != SourceNone {
			return fmt.Errorf("%s: failed result with source %s", r.Symbol, r.Source)
		}
	default:
		return fmt.Errorf("%s: unknown status %q", r.Symbol, r.Status)
	}
	return nil
}

// Batch is the ordered outcome of one FetchBatch call.
// len(Results) always equals Requested.
type Batch struct {
	ID          string   `json:"id"`
	Results     []Result `json:"results"`
	Requested   int      `json:"requested"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	Cached      int      `json:"cached"`
	CompletedAt int64    `json:"completed_at"`
}
