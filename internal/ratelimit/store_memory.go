package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxTrackedKeys caps the window map. At the high-water mark the
// oldest-inserted key is evicted, which at worst grants an evicted client a
// fresh window. Favoring availability over strictness is deliberate here.
const maxTrackedKeys = 10000

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local fixed-window Store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	// order tracks insertion, oldest first. Each live key appears exactly
	// once: appended on insert, removed on evict.
	order   []string
	maxKeys int
	now     func() time.Time
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		maxKeys: maxTrackedKeys,
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, windowDur time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok {
		s.evictIfFull()
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
		s.order = append(s.order, key)
	} else if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(windowDur)
	}

	w.count++
	res := &Result{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}
	return res, nil
}

// evictIfFull removes the oldest-inserted live key once the map reaches the
// high-water mark. Caller holds s.mu.
func (s *MemoryStore) evictIfFull() {
	for len(s.windows) >= s.maxKeys && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.windows, oldest)
	}
}
