package refund

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStorage is an in-memory Storage used in tests and local development.
type memoryStorage struct {
	mu       sync.Mutex
	requests map[uuid.UUID]Request
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{requests: make(map[uuid.UUID]Request)}
}

func (m *memoryStorage) CreateRequest(ctx context.Context, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[r.ID] = r
	return nil
}

func (m *memoryStorage) Request(ctx context.Context, id uuid.UUID) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return r, nil
}

func (m *memoryStorage) ClaimDue(ctx context.Context, maxRetries, limit int, now, staleBefore time.Time) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Request
	for _, r := range m.requests {
		switch {
		case (r.Status == StatusPending || r.Status == StatusFailed) && r.RetryCount < maxRetries:
			if r.NextRetryAt != nil && r.NextRetryAt.After(now) {
				continue
			}
			due = append(due, r)
		case r.Status == StatusProcessing && r.UpdatedAt.Before(staleBefore):
			// Abandoned by a crashed run; take it over.
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	for i := range due {
		due[i].Status = StatusProcessing
		due[i].UpdatedAt = now
		m.requests[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *memoryStorage) UpdateRequest(ctx context.Context, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[r.ID]; !ok {
		return ErrRequestNotFound
	}
	m.requests[r.ID] = r
	return nil
}

func (m *memoryStorage) Exhausted(ctx context.Context, maxRetries int) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, r := range m.requests {
		if (r.Status == StatusPending || r.Status == StatusFailed) && r.RetryCount >= maxRetries {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStorage) CompletedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, r := range m.requests {
		if r.PaymentID == paymentID && r.Status == StatusCompleted {
			total += r.RequestedAmount
		}
	}
	return total, nil
}
