package billing

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// memoryStorage is an in-memory Storage used in tests and local development.
type memoryStorage struct {
	mu            sync.Mutex
	payments      map[uuid.UUID]Payment
	subscriptions map[uuid.UUID]Subscription
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		payments:      make(map[uuid.UUID]Payment),
		subscriptions: make(map[uuid.UUID]Subscription),
	}
}

func (m *memoryStorage) CreatePayment(ctx context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.OrderID == p.OrderID {
			return ErrDuplicateOrderID
		}
	}

	p.Metadata = maps.Clone(p.Metadata)
	m.payments[p.ID] = p
	return nil
}

func (m *memoryStorage) Payment(ctx context.Context, id uuid.UUID) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	p.Metadata = maps.Clone(p.Metadata)
	return p, nil
}

func (m *memoryStorage) PaymentByOrderID(ctx context.Context, orderID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.OrderID == orderID {
			p.Metadata = maps.Clone(p.Metadata)
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (m *memoryStorage) PaymentByGatewayTransactionID(ctx context.Context, txID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.GatewayTransactionID != nil && *p.GatewayTransactionID == txID {
			p.Metadata = maps.Clone(p.Metadata)
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (m *memoryStorage) UpdatePayment(ctx context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	p.Metadata = maps.Clone(p.Metadata)
	m.payments[p.ID] = p
	return nil
}

func (m *memoryStorage) CreateSubscription(ctx context.Context, s Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscriptions {
		if existing.AccountID == s.AccountID && existing.IsActive() {
			return ErrSubscriptionExists
		}
	}
	m.subscriptions[s.ID] = s
	return nil
}

func (m *memoryStorage) ActiveSubscription(ctx context.Context, accountID string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subscriptions {
		if s.AccountID == accountID && s.IsActive() {
			return s, nil
		}
	}
	return Subscription{}, ErrSubscriptionNotFound
}

func (m *memoryStorage) UpdateSubscription(ctx context.Context, s Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[s.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	m.subscriptions[s.ID] = s
	return nil
}
