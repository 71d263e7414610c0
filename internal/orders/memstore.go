package orders

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-process order repository with the same semantics as Store.
// It backs STORAGE_BACKEND=memory and the service tests.
type MemStore struct {
	mu     sync.RWMutex
	orders map[string]Order

	// FailInsertAfter, when positive, makes InsertMany fail once that many
	// documents were written. Used to exercise partial bulk writes.
	FailInsertAfter int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{orders: map[string]Order{}}
}

func (m *MemStore) FindOne(_ context.Context, f Filter) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f.OrderID != "" {
		o, ok := m.orders[f.OrderID]
		if !ok || !f.Matches(o) {
			return nil, nil
		}
		return &o, nil
	}
	for _, o := range m.sorted() {
		if f.Matches(o) {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MemStore) Find(_ context.Context, f Filter, srt Sort, skip, limit int) ([]Order, error) {
	m.mu.RLock()
	var out []Order
	for _, o := range m.orders {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()

	if err := SortOrders(out, srt); err != nil {
		return nil, err
	}
	return Page(out, skip, limit), nil
}

func (m *MemStore) Count(_ context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, o := range m.orders {
		if f.Matches(o) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertOne(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.OrderID]; exists {
		return fmt.Errorf("insert %s: %w", o.OrderID, ErrConflict)
	}
	m.orders[o.OrderID] = o
	return nil
}

// InsertMany writes every doc whose order_id is free and reports the rest
// through a *ConflictError, like Store's conditional transactions.
func (m *MemStore) InsertMany(_ context.Context, docs []Order) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	var conflicts []string
	for _, o := range docs {
		if m.FailInsertAfter > 0 && written >= m.FailInsertAfter {
			return written, fmt.Errorf("transact write: injected failure after %d items", written)
		}
		if _, exists := m.orders[o.OrderID]; exists {
			conflicts = append(conflicts, o.OrderID)
			continue
		}
		m.orders[o.OrderID] = o
		written++
	}
	if len(conflicts) > 0 {
		return written, &ConflictError{IDs: conflicts}
	}
	return written, nil
}

func (m *MemStore) UpdateOne(_ context.Context, orderID string, p Patch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return 0, nil
	}
	m.orders[orderID] = p.Apply(o)
	return 1, nil
}

func (m *MemStore) DeleteOne(_ context.Context, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[orderID]; !ok {
		return 0, nil
	}
	delete(m.orders, orderID)
	return 1, nil
}

// caller holds m.mu
func (m *MemStore) sorted() []Order {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	_ = SortOrders(out, Sort{Field: "order_id", Direction: Ascending})
	return out
}
