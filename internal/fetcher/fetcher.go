// Package fetcher resolves one symbol to a quote: TTL cache first, then the
// venue's upstream client. Every provider success refreshes both the TTL cache
// and the last-known-good store, whichever caller triggered it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quoteengine/internal/lkg"
	"quoteengine/internal/metrics"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/cache"
)

// DefaultCallTimeout bounds a shared upstream call.
const DefaultCallTimeout = 5 * time.Second

// Result is a fetched quote and whether it came from the TTL cache.
type Result struct {
	Quote  provider.Quote
	Cached bool
}

// Config carries the collaborators. Domestic and International are required;
// the domestic client is expected to be wrapped in a ratelimit.Client.
type Config struct {
	Domestic      provider.Client
	International provider.Client
	Classify      provider.Classifier
	Cache         *cache.Cache
	LKG           *lkg.Store
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	// CallTimeout bounds the upstream call shared by coalesced callers.
	CallTimeout time.Duration
	Now         func() time.Time
}

type Fetcher struct {
	cfg Config
	sf  singleflight.Group
}

func New(cfg Config) (*Fetcher, error) {
	if cfg.Domestic == nil || cfg.International == nil {
		return nil, fmt.Errorf("fetcher: both venue clients are required")
	}
	if cfg.Cache == nil || cfg.LKG == nil {
		return nil, fmt.Errorf("fetcher: cache and last-known-good store are required")
	}
	if cfg.Classify == nil {
		cfg.Classify = provider.NewClassifier()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Fetcher{cfg: cfg}, nil
}

// Fetch returns a quote for symbol or a tagged provider error.
// Concurrent misses for the same symbol share one upstream call; each caller
// still stops waiting when its own ctx ends.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (Result, error) {
	if q, ok := f.cfg.Cache.Get(symbol); ok {
		return Result{Quote: q, Cached: true}, nil
	}

	ch := f.sf.DoChan(symbol, func() (q any, err error) {
		// singleflight re-panics on a fresh goroutine, out of reach of any caller's recover
		defer func() {
			if p := recover(); p != nil {
				f.cfg.Logger.Error("upstream client panicked", zap.String("symbol", symbol), zap.Any("panic", p))
				q, err = provider.Quote{}, provider.Wrap(provider.ReasonUnknown, symbol, fmt.Errorf("panic: %v", p))
			}
		}()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.CallTimeout)
		defer cancel()
		return f.fetchUpstream(cctx, symbol)
	})
	select {
	case <-ctx.Done():
		return Result{}, provider.Wrap(provider.ReasonTimeout, symbol, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return Result{Quote: r.Val.(provider.Quote)}, nil
	}
}

func (f *Fetcher) fetchUpstream(ctx context.Context, symbol string) (provider.Quote, error) {
	venue := f.cfg.Classify(symbol)
	client := f.cfg.International
	if venue == provider.Domestic {
		client = f.cfg.Domestic
	}

	start := time.Now()
	q, err := client.Fetch(ctx, symbol)
	elapsed := time.Since(start)
	if err != nil {
		reason := provider.ReasonOf(err)
		f.cfg.Metrics.ObserveFetch(string(venue), string(reason), elapsed)
		f.cfg.Logger.Debug("upstream fetch failed",
			zap.String("symbol", symbol),
			zap.String("venue", string(venue)),
			zap.String("reason", string(reason)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		// keep the taxonomy closed even if a client returns an untagged error
		var pe *provider.Error
		if !errors.As(err, &pe) {
			err = provider.Wrap(reason, symbol, err)
		}
		return provider.Quote{}, err
	}
	f.cfg.Metrics.ObserveFetch(string(venue), "ok", elapsed)

	if q.Symbol == "" {
		q.Symbol = symbol
	}
	observed := f.cfg.Now()
	if q.Timestamp <= 0 {
		q.Timestamp = observed.Unix()
	} else {
		observed = time.Unix(q.Timestamp, 0)
	}
	f.cfg.Cache.Put(symbol, q)
	f.cfg.LKG.Save(symbol, q.Price, observed)
	return q, nil
}
