// Package idempotency records already-handled external event identifiers so
// retried notifications (e.g. a payment webhook redelivered for days) are
// safe to process more than once.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// DefaultTTL covers worst-case external retry windows; payment webhooks are
// retried for up to 3 days.
const DefaultTTL = 72 * time.Hour

// Store is the idempotency record interface. The in-memory implementation is
// process-local by design; a multi-instance deployment swaps in RedisStore
// without changing callers.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a map of keys to values with expiry timestamps. A bloom
// filter fronts the map so the common case, a key never seen before,
// short-circuits without touching the entry map. Expired entries are evicted
// lazily on access and by a periodic sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	filter  *bloom.BloomFilter
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore sized for the given expected
// number of live keys.
func NewMemoryStore(expectedKeys uint) *MemoryStore {
	if expectedKeys == 0 {
		expectedKeys = 1_000_000
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		filter:  bloom.NewWithEstimates(expectedKeys, 0.001),
		now:     time.Now,
	}
}

// Has reports whether the key was recorded and has not expired.
func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	_, ok, _ := s.lookup(key)
	return ok, nil
}

// Get returns the stored value for the key when present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok, _ := s.lookup(key)
	return v, ok, nil
}

// Set records the key. A non-positive ttl falls back to DefaultTTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	s.filter.Add([]byte(key))
	return nil
}

func (s *MemoryStore) lookup(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A negative bloom test means the key was definitely never set.
	if !s.filter.Test([]byte(key)) {
		return "", false, nil
	}

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// StartSweep launches a goroutine purging expired entries every interval.
// It stops when ctx is cancelled.
func (s *MemoryStore) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.sweep(now)
			}
		}
	}()
}

// sweep removes expired entries. The bloom filter does not support deletion,
// so stale filter bits remain as harmless false positives that fall through
// to the map.
func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
