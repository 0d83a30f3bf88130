package reconcile

import (
	"context"
	"sync"
	"time"
)

// memoryStorage is an in-memory event log used in tests and local
// development.
type memoryStorage struct {
	mu     sync.Mutex
	events map[string]EventRecord
}

// NewMemoryStorage returns an empty in-memory event log.
func NewMemoryStorage() Storage {
	return &memoryStorage{events: make(map[string]EventRecord)}
}

func (m *memoryStorage) LogEvent(ctx context.Context, rec EventRecord) (EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.events[rec.ID]; ok {
		return existing, nil
	}
	m.events[rec.ID] = rec
	return rec, nil
}

func (m *memoryStorage) ClaimEvent(ctx context.Context, id string, at time.Time, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.events[id]
	if !ok {
		return false, ErrEventNotFound
	}
	if rec.ProcessedAt != nil {
		return false, nil
	}
	if rec.ClaimedAt != nil && at.Sub(*rec.ClaimedAt) < ttl {
		return false, nil
	}
	rec.ClaimedAt = &at
	m.events[id] = rec
	return true, nil
}

func (m *memoryStorage) ReleaseEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	rec.ClaimedAt = nil
	m.events[id] = rec
	return nil
}

func (m *memoryStorage) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.events[id]
	if !ok {
		return false, ErrEventNotFound
	}
	if rec.ProcessedAt != nil {
		return false, nil
	}
	rec.ProcessedAt = &at
	rec.ClaimedAt = nil
	rec.Error = nil
	m.events[id] = rec
	return true, nil
}

func (m *memoryStorage) RecordError(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	rec.Error = &message
	m.events[id] = rec
	return nil
}

func (m *memoryStorage) Event(ctx context.Context, id string) (EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.events[id]
	if !ok {
		return EventRecord{}, ErrEventNotFound
	}
	return rec, nil
}
