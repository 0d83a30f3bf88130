package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process sliding window store. It is safe for
// concurrent use by multiple goroutines but is not shared across processes;
// see the package documentation for the deployment caveat.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*slidingWindowState

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type slidingWindowState struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often fully-expired keys are evicted.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates an in-memory store with a background cleanup loop.
// Call Close to stop the loop when the store is no longer needed.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*slidingWindowState),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// RecordIfAllowed atomically checks the window count and records n
// timestamps when the key stays within limit.
func (s *MemoryStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (bool, int64, error) {
	sw := s.window(key)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := now.Add(-window)
	valid := sw.timestamps[:0]
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	sw.timestamps = valid

	count := int64(len(sw.timestamps))
	if count+int64(n) > int64(limit) {
		return false, count, nil
	}

	for range n {
		sw.timestamps = append(sw.timestamps, now)
	}
	return true, count + int64(n), nil
}

// CountInWindow returns the number of timestamps within the window,
// dropping expired ones along the way.
func (s *MemoryStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.RLock()
	sw, exists := s.windows[key]
	s.mu.RUnlock()

	if !exists {
		return 0, nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := time.Now().Add(-window)
	valid := sw.timestamps[:0]
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	sw.timestamps = valid

	return int64(len(sw.timestamps)), nil
}

// Delete removes all state for the given key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *MemoryStore) window(key string) *slidingWindowState {
	s.mu.RLock()
	sw, exists := s.windows[key]
	s.mu.RUnlock()
	if exists {
		return sw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sw, exists = s.windows[key]; exists {
		return sw
	}
	sw = &slidingWindowState{}
	s.windows[key] = sw
	return sw
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup evicts keys whose windows hold no timestamps.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sw := range s.windows {
		sw.mu.Lock()
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
		}
		sw.mu.Unlock()
	}
}

var _ Store = (*MemoryStore)(nil)
