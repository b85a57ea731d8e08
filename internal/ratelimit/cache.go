package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ConfigSource loads all config rows from the store.
type ConfigSource interface {
	ListConfigs(ctx context.Context) ([]Config, error)
}

// DefaultCacheTTL is how long a refreshed config table stays fresh.
const DefaultCacheTTL = 60 * time.Second

// ConfigCache holds the role id to config mapping, refreshed from the store
// when empty or older than the TTL. Concurrent readers hitting a stale cache
// share one refresh through singleflight instead of each fetching.
type ConfigCache struct {
	source ConfigSource
	ttl    time.Duration
	clock  func() time.Time

	mu          sync.Mutex
	configs     map[int64]Config
	lastRefresh time.Time

	group singleflight.Group
}

// NewConfigCache constructs a ConfigCache.
func NewConfigCache(source ConfigSource, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ConfigCache{source: source, ttl: ttl, clock: time.Now}
}

// SetClockForTest replaces the time source.
func (c *ConfigCache) SetClockForTest(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Get returns the config for a role, refreshing the cache first if stale.
// The boolean reports whether a row exists for the role.
func (c *ConfigCache) Get(ctx context.Context, roleID int64) (Config, bool, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return Config{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.configs[roleID]
	return cfg, ok, nil
}

// Invalidate clears the refresh timestamp so the next read fetches fresh
// rows regardless of remaining TTL. Called whenever an operator edits a
// config, so changes take effect immediately.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = time.Time{}
}

func (c *ConfigCache) ensureFresh(ctx context.Context) error {
	if !c.stale() {
		return nil
	}
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		// A waiter that queued behind a finished refresh skips its own.
		if !c.stale() {
			return nil, nil
		}
		rows, err := c.source.ListConfigs(ctx)
		if err != nil {
			return nil, err
		}
		configs := make(map[int64]Config, len(rows))
		for _, row := range rows {
			configs[row.RoleID] = row
		}
		c.mu.Lock()
		c.configs = configs
		c.lastRefresh = c.clock()
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *ConfigCache) stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh.IsZero() || c.clock().Sub(c.lastRefresh) > c.ttl
}
