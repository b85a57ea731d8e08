package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Usage reports how many requests a subject made inside the trailing windows
// before the current request was recorded.
type Usage struct {
	Minute int
	Hour   int
}

type windows struct {
	minute []time.Time
	hour   []time.Time
}

// Store tracks recent-request timestamps per subject. Entries live in a
// fixed-capacity LRU so memory is bounded by active-principal count rather
// than total historical request volume; least-recently-active subjects are
// evicted wholesale. A single lock covers the whole prune-count-append
// sequence, which is cheap at this scale and keeps the check atomic.
type Store struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *windows]
	clock   func() time.Time
}

// DefaultStoreCapacity bounds the number of tracked subjects.
const DefaultStoreCapacity = 4096

// NewStore constructs a Store tracking at most capacity subjects.
func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	entries, err := lru.New[string, *windows](capacity)
	if err != nil {
		return nil, err
	}
	return &Store{entries: entries, clock: time.Now}, nil
}

// SetClockForTest replaces the time source.
func (s *Store) SetClockForTest(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Allow performs the sliding window check for one request. Both windows are
// pruned to their boundary, counted, and compared against the ceilings; the
// per-minute ceiling is checked first. On success the current timestamp is
// appended to both windows and Allow reports the pre-append counts, which is
// what the remaining-quota headers are computed from. On rejection it reports
// the seconds a client should wait before retrying.
func (s *Store) Allow(subject string, perMinute, perHour int) (Usage, bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	entry, ok := s.entries.Get(subject)
	if !ok {
		entry = &windows{}
		s.entries.Add(subject, entry)
	}

	entry.minute = prune(entry.minute, now.Add(-minuteWindow))
	entry.hour = prune(entry.hour, now.Add(-hourWindow))
	usage := Usage{Minute: len(entry.minute), Hour: len(entry.hour)}

	if usage.Minute >= perMinute {
		return usage, false, int(minuteWindow / time.Second)
	}
	if usage.Hour >= perHour {
		return usage, false, int(hourWindow / time.Second)
	}

	entry.minute = append(entry.minute, now)
	entry.hour = append(entry.hour, now)
	return usage, true, 0
}

// prune drops timestamps at or before the cutoff. Timestamps are appended in
// order, so the first retained index can be found with a linear scan from the
// front.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[idx:]...)
}
