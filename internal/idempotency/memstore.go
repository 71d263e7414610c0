package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is the in-process Keeper used with STORAGE_BACKEND=memory.
type MemStore struct {
	mu        sync.Mutex
	records   map[string]Record
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore(ttlWindow time.Duration) *MemStore {
	return &MemStore{
		records:   map[string]Record{},
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (m *MemStore) Claim(_ context.Context, key, requestHash string) (bool, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	if existing, ok := m.records[key]; ok && existing.Status != StatusFailed && existing.ExpiresAt >= now.Unix() {
		if existing.RequestHash != requestHash {
			return false, &existing, ErrKeyReused
		}
		return false, &existing, nil
	}

	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		RequestHash:    requestHash,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.ttlWindow).Unix(),
	}
	m.records[key] = rec
	return true, &rec, nil
}

func (m *MemStore) MarkDone(_ context.Context, key, orderID, responseBody string, responseStatus int) error {
	return m.update(key, func(r *Record) {
		r.Status = StatusDone
		r.OrderID = orderID
		r.ResponseBody = responseBody
		r.ResponseStatus = responseStatus
	})
}

func (m *MemStore) MarkFailed(_ context.Context, key, note string) error {
	return m.update(key, func(r *Record) {
		r.Status = StatusFailed
		r.Note = note
	})
}

func (m *MemStore) update(key string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key]
	if !ok {
		return fmt.Errorf("idempotency key %q not found", key)
	}
	fn(&r)
	r.UpdatedAt = m.nowFunc().UTC()
	m.records[key] = r
	return nil
}
