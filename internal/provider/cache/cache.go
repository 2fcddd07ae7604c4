package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"quoteengine/internal/provider"
)

const (
	DefaultTTL      = 60 * time.Second
	DefaultMaxItems = 4096
	DefaultShards   = 16
)

// entry stores one quote with the time it was written.
type entry struct {
	symbol     string
	quote      provider.Quote
	insertedAt time.Time
}

type shard struct {
	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used
	max   int
}

// Cache is a per-symbol TTL cache for quotes.
// Expiry is evaluated on read; there is no sweeper goroutine.
// Keys are spread over independently locked shards, each capped with LRU eviction.
type Cache struct {
	ttl    time.Duration
	now    func() time.Time
	shards []*shard
}

type Option func(*Cache)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache. Non-positive arguments fall back to the package defaults.
func New(ttl time.Duration, maxItems, shards int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if shards <= 0 {
		shards = DefaultShards
	}
	if shards > maxItems {
		shards = maxItems
	}
	perShard := (maxItems + shards - 1) / shards
	c := &Cache{ttl: ttl, now: time.Now, shards: make([]*shard, shards)}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]*list.Element), order: list.New(), max: perShard}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) shardFor(symbol string) *shard {
	return c.shards[xxhash.Sum64String(symbol)%uint64(len(c.shards))]
}

// Get returns the cached quote while it is younger than the TTL.
// A stale entry is dropped and reported as absent.
func (c *Cache) Get(symbol string) (provider.Quote, bool) {
	s := c.shardFor(symbol)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[symbol]
	if !ok {
		return provider.Quote{}, false
	}
	e := el.Value.(*entry)
	if now.Sub(e.insertedAt) >= c.ttl {
		s.order.Remove(el)
		delete(s.items, symbol)
		return provider.Quote{}, false
	}
	s.order.MoveToFront(el)
	return e.quote, true
}

// Put stores or refreshes the quote for symbol.
func (c *Cache) Put(symbol string, q provider.Quote) {
	s := c.shardFor(symbol)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[symbol]; ok {
		e := el.Value.(*entry)
		e.quote = q
		e.insertedAt = now
		s.order.MoveToFront(el)
		return
	}
	s.items[symbol] = s.order.PushFront(&entry{symbol: symbol, quote: q, insertedAt: now})
	for len(s.items) > s.max {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*entry).symbol)
	}
}

// Len counts stored entries, including ones that expired but were not read yet.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// TTL reports the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }
