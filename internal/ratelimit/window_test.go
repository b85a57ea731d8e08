package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/stocknest/stocknest/testing"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	store, err := NewStore(8)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClockForTest(func() time.Time { return now })
	return store, &now
}

func TestAllowMinuteBoundary(t *testing.T) {
	store, now := newTestStore(t)

	for i := 0; i < 5; i++ {
		usage, ok, _ := store.Allow("subject-1", 5, 1000)
		require.True(t, ok, "request %d", i+1)
		require.Equal(t, i, usage.Minute)
		*now = now.Add(100 * time.Millisecond)
	}

	usage, ok, retry := store.Allow("subject-1", 5, 1000)
	require.False(t, ok)
	require.Equal(t, 5, usage.Minute)
	require.Equal(t, 60, retry)

	// Past the window of the first request the oldest stamps fall out.
	*now = now.Add(61 * time.Second)
	_, ok, _ = store.Allow("subject-1", 5, 1000)
	require.True(t, ok)
}

func TestAllowChecksMinuteBeforeHour(t *testing.T) {
	store, _ := newTestStore(t)

	// Both ceilings already met; the minute window wins the tie.
	_, ok, _ := store.Allow("subject-1", 1, 1)
	require.True(t, ok)
	_, ok, retry := store.Allow("subject-1", 1, 1)
	require.False(t, ok)
	require.Equal(t, 60, retry)
}

func TestAllowHourCeiling(t *testing.T) {
	store, now := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, ok, _ := store.Allow("subject-1", 100, 3)
		require.True(t, ok)
		// Spread past the minute window so only the hour ceiling binds.
		*now = now.Add(2 * time.Minute)
	}

	usage, ok, retry := store.Allow("subject-1", 100, 3)
	require.False(t, ok)
	require.Equal(t, 0, usage.Minute)
	require.Equal(t, 3, usage.Hour)
	require.Equal(t, 3600, retry)
}

func TestSubjectsAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)

	_, ok, _ := store.Allow("subject-1", 1, 10)
	require.True(t, ok)
	_, ok, _ = store.Allow("subject-1", 1, 10)
	require.False(t, ok)

	_, ok, _ = store.Allow("subject-2", 1, 10)
	require.True(t, ok)
}

func TestIdleSubjectsAreEvicted(t *testing.T) {
	store, err := NewStore(2)
	require.NoError(t, err)

	_, ok, _ := store.Allow("subject-1", 1, 10)
	require.True(t, ok)

	// Two fresher subjects push subject-1 out of the LRU; its history is gone.
	for i := 2; i <= 3; i++ {
		_, ok, _ = store.Allow(fmt.Sprintf("subject-%d", i), 1, 10)
		require.True(t, ok)
	}
	_, ok, _ = store.Allow("subject-1", 1, 10)
	require.True(t, ok)
}
