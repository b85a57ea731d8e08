package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/stocknest/stocknest/testing"
)

type stubConfigSource struct {
	mu      sync.Mutex
	configs []Config
	err     error
	fetches int
}

func (s *stubConfigSource) ListConfigs(ctx context.Context) ([]Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.configs, nil
}

func (s *stubConfigSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func TestConfigCacheServesWithinTTL(t *testing.T) {
	source := &stubConfigSource{configs: []Config{{ID: 1, RoleID: 10, RequestsPerMinute: 60, RequestsPerHour: 1000, Enabled: true}}}
	cache := NewConfigCache(source, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.SetClockForTest(func() time.Time { return now })

	cfg, ok, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 60, cfg.RequestsPerMinute)

	_, ok, err = cache.Get(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, source.fetchCount(), "second read within TTL must not refetch")

	_, ok, err = cache.Get(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, ok, "unknown role has no config")
}

func TestConfigCacheRefreshesAfterTTL(t *testing.T) {
	source := &stubConfigSource{configs: []Config{{RoleID: 10, RequestsPerMinute: 60}}}
	cache := NewConfigCache(source, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.SetClockForTest(func() time.Time { return now })

	_, _, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)

	source.mu.Lock()
	source.configs = []Config{{RoleID: 10, RequestsPerMinute: 120}}
	source.mu.Unlock()

	now = now.Add(61 * time.Second)
	cfg, ok, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 120, cfg.RequestsPerMinute)
	require.Equal(t, 2, source.fetchCount())
}

func TestInvalidateForcesRefreshRegardlessOfTTL(t *testing.T) {
	source := &stubConfigSource{configs: []Config{{RoleID: 10, RequestsPerMinute: 60}}}
	cache := NewConfigCache(source, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.SetClockForTest(func() time.Time { return now })

	_, _, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, source.fetchCount())

	source.mu.Lock()
	source.configs = []Config{{RoleID: 10, RequestsPerMinute: 240}}
	source.mu.Unlock()

	cache.Invalidate()

	cfg, _, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 240, cfg.RequestsPerMinute)
	require.Equal(t, 2, source.fetchCount())
}

func TestConfigCachePropagatesFetchErrors(t *testing.T) {
	source := &stubConfigSource{err: errors.New("connection refused")}
	cache := NewConfigCache(source, time.Minute)

	_, _, err := cache.Get(context.Background(), 10)
	require.Error(t, err)
}

func TestConcurrentReadersShareOneRefresh(t *testing.T) {
	source := &stubConfigSource{configs: []Config{{RoleID: 10, RequestsPerMinute: 60}}}
	cache := NewConfigCache(source, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := cache.Get(context.Background(), 10)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// Readers racing the first fill share the in-flight refresh; stragglers
	// that queued behind it skip their own. Either way the count stays low.
	require.LessOrEqual(t, source.fetchCount(), 2)
}
