// ABOUTME: Mock Backend implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject read/write failures

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Backend implementation for testing.
// It also serves the "memory" database backend.
type MockStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	getErr error
	putErr error
	puts   int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the stored value.
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores a copy of value.
func (m *MockStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return m.putErr
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	m.puts++
	return nil
}

// Delete removes key.
func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// SetGetError makes every subsequent Get fail with err (nil clears it).
func (m *MockStore) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetPutError makes every subsequent Put fail with err (nil clears it).
func (m *MockStore) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// PutCount returns the number of successful Put calls.
func (m *MockStore) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Raw returns the stored bytes for key without copying error state.
func (m *MockStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}
