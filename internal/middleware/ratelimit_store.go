package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/classpad/classpad/internal/cache"
)

// RateStore tracks request counters per rate-limit key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

const memoryPruneInterval = time.Minute

// memoryRateStore provides process-local rate limiting. Expired windows are
// pruned opportunistically during Increment, so no background goroutine is
// needed.
type memoryRateStore struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	lastPrune time.Time
	clock     func() time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore returns a RateStore backed by process memory.
func NewMemoryRateStore() RateStore {
	return &memoryRateStore{
		counters: make(map[string]*windowCounter),
		clock:    time.Now,
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	counter, ok := s.counters[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &windowCounter{windowEnd: now.Add(window)}
		s.counters[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// pruneLocked drops counters whose window has passed. Caller holds mu.
func (s *memoryRateStore) pruneLocked(now time.Time) {
	if now.Sub(s.lastPrune) < memoryPruneInterval {
		return
	}
	s.lastPrune = now
	for key, counter := range s.counters {
		if now.After(counter.windowEnd) {
			delete(s.counters, key)
		}
	}
}

// NewSharedRateStore adapts a cache.Store, Redis or database backed, into a
// RateStore whose window is shared across replicas.
func NewSharedRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

type storeRateStore struct {
	store cache.Store
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
