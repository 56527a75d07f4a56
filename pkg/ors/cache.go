package ors

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/sells-group/orsmap/internal/cache"
	"github.com/sells-group/orsmap/internal/model"
)

// PlaceCache caches forward geocoding results. Keys are whitespace
// normalized and case-folded so "Lublin" and " LUBLIN" share an entry.
type PlaceCache struct {
	lru *cache.LRU[[]model.Place]

	mu   sync.Mutex // guards fold; cases.Caser is stateful
	fold cases.Caser
}

// NewPlaceCache creates a cache holding at most maxEntries queries for ttl.
func NewPlaceCache(maxEntries int, ttl time.Duration) *PlaceCache {
	return &PlaceCache{
		lru:  cache.New[[]model.Place](maxEntries, ttl),
		fold: cases.Fold(),
	}
}

func (c *PlaceCache) key(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fold.String(strings.Join(strings.Fields(text), " "))
}

// Get returns a copy of the cached places for text.
func (c *PlaceCache) Get(text string) ([]model.Place, bool) {
	places, ok := c.lru.Get(c.key(text))
	if !ok {
		return nil, false
	}
	return append([]model.Place(nil), places...), true
}

// Put stores places for text. Empty results are not cached so a later
// lookup can succeed.
func (c *PlaceCache) Put(text string, places []model.Place) {
	if len(places) == 0 {
		return
	}
	c.lru.Put(c.key(text), append([]model.Place(nil), places...))
}

// Stats returns cache performance statistics.
func (c *PlaceCache) Stats() cache.Stats {
	return c.lru.Stats()
}
