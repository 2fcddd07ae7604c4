package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"quoteengine/internal/provider"
)

// DefaultMaxWait bounds how long a caller queues for a slot before giving up.
const DefaultMaxWait = 2 * time.Second

// Limiter enforces a minimum interval between calls shared by every caller.
// A single instance must gate all outbound calls for one provider.
type Limiter struct {
	lim     *rate.Limiter
	maxWait time.Duration
}

// New returns a limiter allowing one call per interval with no burst.
// maxWait <= 0 uses DefaultMaxWait; interval <= 0 disables limiting.
func New(interval, maxWait time.Duration) *Limiter {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	l := &Limiter{maxWait: maxWait}
	if interval > 0 {
		l.lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return l
}

// Wait blocks until a slot is available.
// It fails with a RateLimited error when no slot frees up within the max wait,
// and with the context error when ctx ends first.
func (l *Limiter) Wait(ctx context.Context, symbol string) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}
	wctx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()
	err := l.lim.Wait(wctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// rate.Limiter also fails fast when the wait would overrun wctx's deadline.
	return provider.Errorf(provider.ReasonRateLimited, symbol, "no slot within %s: %w", l.maxWait, err)
}

// Client wraps a provider client and gates every call through a shared Limiter.
type Client struct {
	C provider.Client
	L *Limiter
}

func (c *Client) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	if err := c.L.Wait(ctx, symbol); err != nil {
		return provider.Quote{}, err
	}
	return c.C.Fetch(ctx, symbol)
}
