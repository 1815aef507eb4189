package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	keyPrefix = "dashboard:"

	// memcached treats larger expirations as absolute unix timestamps.
	maxRelativeExp = 30 * 24 * 60 * 60
	fallbackExp    = 3600
)

// MemcachedCache implements Cache using memcached with JSON-encoded reports.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout and
// maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain whitespace or control characters.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + strings.Join(strings.Fields(k), "_")
}

// Get returns false, nil on miss and false, err on backend or decode failure.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Report, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Report{}, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Report{}, false, nil
		}
		return models.Report{}, false, fmt.Errorf("memcached get: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(item.Value, &report); err != nil {
		return models.Report{}, false, fmt.Errorf("decode cached report: %w", err)
	}
	return report, true, nil
}

func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Report, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	}); err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

func expirationSeconds(ttl time.Duration) int32 {
	exp := int32(ttl.Seconds())
	if exp <= 0 || exp > maxRelativeExp {
		return fallbackExp
	}
	return exp
}

// Ping checks if memcached is reachable.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes idle client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
