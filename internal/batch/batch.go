// Package batch fans a symbol list out to the single-symbol fetcher with
// bounded parallelism and reassembles exactly one result per requested symbol,
// in request order, whatever happens upstream.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quoteengine/internal/aggregate"
	"quoteengine/internal/fetcher"
	"quoteengine/internal/lkg"
	"quoteengine/internal/metrics"
	"quoteengine/internal/provider"
	"quoteengine/internal/quote"
)

const (
	DefaultConcurrency  = 3
	DefaultTimeout      = 5 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultMaxAttempts  = 2
)

// Fetcher resolves one symbol. *fetcher.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (fetcher.Result, error)
}

// LastKnown looks up fallback prices. *lkg.Store implements it.
type LastKnown interface {
	Get(symbol string) (lkg.Entry, bool)
}

type Config struct {
	// Concurrency is the number of symbols fetched at once.
	Concurrency int
	// Timeout is the per-symbol deadline for the first attempt.
	Timeout time.Duration
	// RetryBackoff is the pause before the single retry of a rate-limited fetch.
	// The retry's deadline is extended by the same amount.
	RetryBackoff time.Duration
	MaxAttempts  int
	// BatchTimeout optionally caps the whole call. Zero means no cap.
	BatchTimeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Orchestrator struct {
	fetcher Fetcher
	lkg     LastKnown
	cfg     Config
}

func New(f Fetcher, store LastKnown, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{fetcher: f, lkg: store, cfg: cfg}
}

// FetchBatch returns one result per entry of symbols, in the same order.
// Upstream failures never fail the call; they become Failed results.
// An error is returned only when the orchestration itself breaks.
func (o *Orchestrator) FetchBatch(ctx context.Context, symbols []string) (*quote.Batch, error) {
	start := time.Now()
	id := uuid.NewString()
	log := o.cfg.Logger.With(zap.String("batch_id", id))

	if o.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()
	}

	// duplicates share one fetch but keep their own slots
	positions := make(map[string][]int, len(symbols))
	distinct := make([]string, 0, len(symbols))
	for i, s := range symbols {
		if _, seen := positions[s]; !seen {
			distinct = append(distinct, s)
		}
		positions[s] = append(positions[s], i)
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[string]quote.Result, len(distinct))
		g        errgroup.Group
	)
	g.SetLimit(o.cfg.Concurrency)
	for _, sym := range distinct {
		g.Go(func() error {
			r := o.resolve(ctx, log, sym)
			mu.Lock()
			outcomes[sym] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}

	results := o.assemble(log, symbols, positions, outcomes)
	counts := aggregate.Tally(results)
	b := &quote.Batch{
		ID:          id,
		Results:     results,
		Requested:   counts.Requested,
		Succeeded:   counts.Succeeded,
		Failed:      counts.Failed,
		Cached:      counts.Cached,
		CompletedAt: o.cfg.Now().Unix(),
	}

	elapsed := time.Since(start)
	o.cfg.Metrics.ObserveBatch(len(symbols), elapsed)
	log.Info("batch complete",
		zap.Int("requested", b.Requested),
		zap.Int("distinct", len(distinct)),
		zap.Int("succeeded", b.Succeeded),
		zap.Int("failed", b.Failed),
		zap.Int("cached", b.Cached),
		zap.Duration("elapsed", elapsed))
	return b, nil
}

// FetchOne is FetchBatch for a single symbol.
func (o *Orchestrator) FetchOne(ctx context.Context, symbol string) (quote.Result, error) {
	b, err := o.FetchBatch(ctx, []string{symbol})
	if err != nil {
		return quote.Result{}, err
	}
	return b.Results[0], nil
}

// assemble walks the request order. Repeats of a symbol reuse its outcome and,
// when it carries a quote, are marked as served from cache.
func (o *Orchestrator) assemble(log *zap.Logger, symbols []string, positions map[string][]int, outcomes map[string]quote.Result) []quote.Result {
	results := make([]quote.Result, len(symbols))
	for sym, idxs := range positions {
		r, ok := outcomes[sym]
		if !ok {
			log.Error("missing outcome, synthesizing placeholder", zap.String("symbol", sym))
			r = quote.Placeholder(sym, o.cfg.Now())
		}
		for n, i := range idxs {
			slot := r
			if n > 0 && slot.Status != quote.StatusFailed {
				slot.FromCache = true
				slot.Source = quote.SourceCache
			}
			results[i] = slot
		}
	}
	for i := range results {
		if results[i].Symbol != symbols[i] {
			// only reachable if positions was built wrong
			log.Error("slot left unfilled", zap.Int("index", i), zap.String("symbol", symbols[i]))
			results[i] = quote.Placeholder(symbols[i], o.cfg.Now())
		}
		o.cfg.Metrics.ObserveResult(string(results[i].Status), string(results[i].Source))
	}
	return results
}

// resolve runs the per-symbol pipeline: deadline, fetch, one retry for
// rate limiting, then last-known-good fallback. It never panics outward.
func (o *Orchestrator) resolve(ctx context.Context, log *zap.Logger, symbol string) (res quote.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("symbol pipeline panicked", zap.String("symbol", symbol), zap.Any("panic", p))
			o.cfg.Metrics.ObserveFailure(string(provider.ReasonUnknown))
			res = o.failed(symbol, provider.ReasonUnknown)
		}
	}()

	deadline := time.Now().Add(o.cfg.Timeout)
	var reason provider.Reason
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleep(ctx, o.cfg.RetryBackoff) {
				reason = provider.ReasonTimeout
				break
			}
			deadline = deadline.Add(o.cfg.RetryBackoff)
		}
		r, err := o.attempt(ctx, symbol, deadline)
		if err == nil {
			return quote.Succeeded(symbol, r.Quote, r.Cached, o.cfg.Now())
		}
		reason = provider.ReasonOf(err)
		log.Debug("fetch attempt failed",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.String("reason", string(reason)),
			zap.Error(err))
		if !provider.Retryable(reason) {
			break
		}
	}

	o.cfg.Metrics.ObserveFailure(string(reason))
	res = o.failed(symbol, reason)
	if res.Stale() {
		log.Warn("serving last-known price", zap.String("symbol", symbol), zap.String("reason", string(reason)))
	}
	return res
}

func (o *Orchestrator) attempt(ctx context.Context, symbol string, deadline time.Time) (fetcher.Result, error) {
	actx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return o.fetcher.Fetch(actx, symbol)
}

func (o *Orchestrator) failed(symbol string, reason provider.Reason) quote.Result {
	now := o.cfg.Now()
	if e, ok := o.lkg.Get(symbol); ok {
		p := e.Price
		return quote.Failure(symbol, reason, &p, e.ObservedAt, now)
	}
	return quote.Failure(symbol, reason, nil, time.Time{}, now)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
