package token

import (
	"context"
	"sync"
	"time"
)

// Store is the keyed persistence contract for cached token records. It is a
// passive, thread-safe container: all cache policy (buffers, grace periods,
// refresh) lives in the Manager. Implementations must make writes atomic per
// key and must never expose a partially written record.
type Store interface {
	// Get returns the record for the tenant, or (nil, nil) when absent.
	// Expired records are still returned; expiry policy is the Manager's.
	Get(ctx context.Context, tenantID string) (*CachedToken, error)
	// Put stores the record, overwriting any previous one for the tenant.
	Put(ctx context.Context, record *CachedToken) error
	// Delete removes the tenant's record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, tenantID string) error
	// DeleteExpiredBefore removes records whose ExpiresAt is before cutoff,
	// checking the stored expiry at deletion time, and returns the count
	// removed. Records refreshed concurrently are left alone.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
	// List returns a snapshot of all records, expired ones included.
	List(ctx context.Context) ([]*CachedToken, error)
	// Health checks backend connectivity.
	Health() error
	// Close releases backend resources.
	Close() error
}

// MemoryStore is an in-memory Store for tests and single-instance
// deployments. Records are lost on restart. Expired records remain visible
// until DeleteExpiredBefore or Delete removes them, matching the persistent
// backends.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*CachedToken
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*CachedToken),
	}
}

// Get returns the tenant's record, or (nil, nil) when absent.
func (s *MemoryStore) Get(ctx context.Context, tenantID string) (*CachedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[tenantID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// Put stores a copy of the record, overwriting any previous one.
func (s *MemoryStore) Put(ctx context.Context, record *CachedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.TenantID] = &copied
	return nil
}

// Delete removes the tenant's record; absent records are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, tenantID)
	return nil
}

// DeleteExpiredBefore removes records expiring before cutoff. The expiry
// check and the delete happen under one lock, so a record replaced by a
// concurrent refresh is never swept.
func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for tenantID, record := range s.records {
		if record.ExpiresAt.Before(cutoff) {
			delete(s.records, tenantID)
			removed++
		}
	}
	return removed, nil
}

// List returns a snapshot of all records.
func (s *MemoryStore) List(ctx context.Context) ([]*CachedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*CachedToken, 0, len(s.records))
	for _, record := range s.records {
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}

// Health always succeeds for the in-memory store.
func (s *MemoryStore) Health() error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
