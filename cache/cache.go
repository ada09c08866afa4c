// Package cache memoizes validation outcomes by URL for a short TTL so
// repeated candidates across articles in the same processing window skip
// re-validation, and known-bad endpoints are not hammered before expiry.
package cache

import (
	"sync"
	"time"

	"github.com/zombar/imagefinder/models"
)

// Clock abstracts time for TTL tests.
type Clock func() time.Time

// Config contains cache configuration.
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{TTL: 60 * time.Minute}
}

type entry struct {
	outcome models.ValidationOutcome
	expires time.Time
}

// ResultCache is a process-local TTL map. Shared across article workers;
// internal locking, no external synchronization required.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     Clock
}

// New creates a ResultCache. clock can be nil to use time.Now.
func New(config Config, clock Clock) *ResultCache {
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{
		entries: make(map[string]entry),
		ttl:     config.TTL,
		now:     clock,
	}
}

// Get returns a fresh cached outcome for the URL, or ok=false.
func (c *ResultCache) Get(url string) (models.ValidationOutcome, bool) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return models.ValidationOutcome{}, false
	}
	return e.outcome, true
}

// Put stores an outcome for the URL. Negative outcomes are stored too: a
// cached rejection is honored until TTL expiry.
func (c *ResultCache) Put(url string, outcome models.ValidationOutcome) {
	c.mu.Lock()
	c.entries[url] = entry{outcome: outcome, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Purge drops expired entries. Called opportunistically by long-running
// owners; correctness never depends on it.
func (c *ResultCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for url, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, url)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
