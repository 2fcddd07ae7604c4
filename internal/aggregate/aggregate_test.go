package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quoteengine/internal/provider"
	"quoteengine/internal/quote"
)

var at = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func sample() []quote.Result {
	q := provider.Quote{Symbol: "AAPL", Price: decimal.NewFromInt(100), Change: decimal.NewFromInt(2), ChangePercent: decimal.RequireFromString("2.04"), Timestamp: at.Unix()}
	dup := quote.Succeeded("AAPL", q, false, at)
	dup.FromCache, dup.Source = true, quote.SourceCache
	lkg := decimal.RequireFromString("41.2")
	return []quote.Result{
		quote.Succeeded("AAPL", q, false, at),
		quote.Failure("SLOW", provider.ReasonTimeout, nil, time.Time{}, at),
		dup,
		quote.Succeeded("MSFT", provider.Quote{Symbol: "MSFT", Price: decimal.NewFromInt(400)}, true, at),
		quote.Failure("OLD", provider.ReasonProviderError, &lkg, at.Add(-time.Hour), at),
	}
}

func TestTally_CountsStatusesAndCache(t *testing.T) {
	got := Tally(sample())
	want := Counts{Requested: 5, Succeeded: 3, Failed: 2, Cached: 2}
	if got != want {
		t.Fatalf("want %+v, got %+v", want, got)
	}
}

func TestTally_Empty(t *testing.T) {
	if got := Tally(nil); got != (Counts{}) {
		t.Fatalf("want zero counts, got %+v", got)
	}
}

func TestDisplay_StaleAndHardFailures(t *testing.T) {
	rows := Display(sample())
	if len(rows) != 5 {
		t.Fatalf("want 5 rows, got %d", len(rows))
	}
	if rows[0].Symbol != "AAPL" || rows[0].Price == nil || !rows[0].Price.Equal(decimal.NewFromInt(100)) || rows[0].Stale {
		t.Fatalf("unexpected fresh row: %+v", rows[0])
	}
	if rows[1].Price != nil || rows[1].Error != "Timeout" || rows[1].Stale {
		t.Fatalf("hard failure must not show a price: %+v", rows[1])
	}
	if rows[4].Price == nil || !rows[4].Price.Equal(decimal.RequireFromString("41.2")) || !rows[4].Stale || rows[4].AsOf != at.Add(-time.Hour).Unix() {
		t.Fatalf("unexpected stale row: %+v", rows[4])
	}
	for i, s := range []string{"AAPL", "SLOW", "AAPL", "MSFT", "OLD"} {
		if rows[i].Symbol != s {
			t.Fatalf("row %d: want %s, got %s", i, s, rows[i].Symbol)
		}
	}
}
