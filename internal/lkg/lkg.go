// Package lkg keeps the last successfully observed price per symbol.
// Entries are never expired or deleted; they are only overwritten by newer successes.
// The store lives in memory and starts empty after a restart.
package lkg

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the most recent good price for a symbol.
type Entry struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Store is safe for concurrent use without external locking.
type Store struct {
	m sync.Map // symbol -> Entry
	n atomic.Int64
}

func New() *Store { return &Store{} }

// Save records price as the latest good value for symbol. Last write wins.
func (s *Store) Save(symbol string, price decimal.Decimal, observedAt time.Time) {
	if _, loaded := s.m.Swap(symbol, Entry{Price: price, ObservedAt: observedAt}); !loaded {
		s.n.Add(1)
	}
}

// Get returns the last good price for symbol, if any.
func (s *Store) Get(symbol string) (Entry, bool) {
	v, ok := s.m.Load(symbol)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Len is the number of symbols ever saved.
func (s *Store) Len() int { return int(s.n.Load()) }
