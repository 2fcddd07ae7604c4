// Package app assembles the process-wide singletons from configuration.
package app

import (
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quoteengine/internal/batch"
	"quoteengine/internal/config"
	"quoteengine/internal/fetcher"
	"quoteengine/internal/httpx"
	"quoteengine/internal/lkg"
	"quoteengine/internal/metrics"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/cache"
	"quoteengine/internal/provider/httpquote"
	"quoteengine/internal/provider/ratelimit"
)

// Engine holds the shared state behind one orchestrator.
type Engine struct {
	Orchestrator *batch.Orchestrator
	Cache        *cache.Cache
	LKG          *lkg.Store
	Limiter      *ratelimit.Limiter
	Metrics      *metrics.Metrics
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	domestic      provider.Client
	international provider.Client
	httpClient    httpquote.HTTPClient
}

// WithClients replaces both upstream clients. The domestic one is still gated by the limiter.
func WithClients(domestic, international provider.Client) Option {
	return func(o *options) {
		o.domestic = domestic
		o.international = international
	}
}

// WithHTTPClient replaces the transport used by the default upstream clients.
func WithHTTPClient(c httpquote.HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// Build wires cfg into an Engine. reg may be nil to skip metrics registration.
func Build(cfg config.Config, log *zap.Logger, reg prometheus.Registerer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.domestic == nil || o.international == nil {
		hc := o.httpClient
		if hc == nil {
			// the per-attempt deadline ends requests first; leave room for the retry backoff
			c := httpx.New(cfg.Engine.FetchTimeout + cfg.Engine.RetryBackoff)
			if cfg.HTTP.UserAgent != "" {
				c.UserAgent = cfg.HTTP.UserAgent
			}
			c.Headers = cfg.HTTP.Headers
			hc = c
		}
		if o.domestic == nil {
			o.domestic = httpquote.New(cfg.Domestic.APIKey,
				httpquote.WithName(string(provider.Domestic)),
				httpquote.WithBaseURL(cfg.Domestic.Endpoint),
				httpquote.WithQuery(queryValues(cfg.Domestic.Query)),
				httpquote.WithHTTPClient(hc))
		}
		if o.international == nil {
			o.international = httpquote.New(cfg.International.APIKey,
				httpquote.WithName(string(provider.International)),
				httpquote.WithBaseURL(cfg.International.Endpoint),
				httpquote.WithQuery(queryValues(cfg.International.Query)),
				httpquote.WithHTTPClient(hc))
		}
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	limiter := ratelimit.New(cfg.Domestic.MinInterval, cfg.Domestic.MaxWait)
	qc := cache.New(cfg.Cache.TTL, cfg.Cache.MaxItems, cfg.Cache.Shards)
	store := lkg.New()

	f, err := fetcher.New(fetcher.Config{
		Domestic:      &ratelimit.Client{C: o.domestic, L: limiter},
		International: o.international,
		Classify:      provider.NewClassifier(cfg.Venue.DomesticSuffixes...),
		Cache:         qc,
		LKG:           store,
		Metrics:       m,
		Logger:        log.Named("fetcher"),
		CallTimeout:   cfg.Engine.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}
	orch := batch.New(f, store, batch.Config{
		Concurrency:  cfg.Engine.Concurrency,
		Timeout:      cfg.Engine.FetchTimeout,
		RetryBackoff: cfg.Engine.RetryBackoff,
		MaxAttempts:  cfg.Engine.MaxAttempts,
		BatchTimeout: cfg.Engine.BatchTimeout,
		Logger:       log.Named("batch"),
		Metrics:      m,
	})

	log.Info("engine ready",
		zap.Int("concurrency", cfg.Engine.Concurrency),
		zap.Duration("fetch_timeout", cfg.Engine.FetchTimeout),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Duration("domestic_min_interval", cfg.Domestic.MinInterval),
		zap.String("domestic_endpoint", cfg.Domestic.Endpoint),
		zap.String("international_endpoint", cfg.International.Endpoint))

	return &Engine{Orchestrator: orch, Cache: qc, LKG: store, Limiter: limiter, Metrics: m}, nil
}

func queryValues(m map[string]string) url.Values {
	q := make(url.Values, len(m))
	for k, v := range m {
		q.Set(k, v)
	}
	return q
}
