// Package cache stores complete fetch-cycle reports keyed by normalized city.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Cache defines the interface for report caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Report, bool, error)
	Set(ctx context.Context, key string, value models.Report, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Report
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		now:  time.Now,
		data: make(map[string]cacheEntry),
	}
}

// Get returns (report, true, nil) on hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Report, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.Report{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Report{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores a report for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Report, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// NoopCache never stores anything. Used for backend "none".
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (models.Report, bool, error) {
	return models.Report{}, false, nil
}

func (NoopCache) Set(context.Context, string, models.Report, time.Duration) error {
	return nil
}
