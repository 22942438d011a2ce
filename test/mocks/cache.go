// Package mocks contains hand-written test doubles shared across packages.
package mocks

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockCache is an in-memory stand-in for the Redis cache.
// Expiration is recorded but never enforced.
type MockCache struct {
	data map[string]string
	ttl  map[string]time.Duration
	mu   sync.RWMutex

	GetErr error
	Gets   int
	Hits   int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]string),
		ttl:  make(map[string]time.Duration),
	}
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Gets++
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	val, ok := m.data[key]
	if ok {
		m.Hits++
	}
	return val, ok, nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(_ context.Context, key, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.ttl[key] = expiration
	return nil
}

// Del removes keys from the mock cache
func (m *MockCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
		delete(m.ttl, key)
	}
	return nil
}

// DeletePrefix removes all keys with the given prefix
func (m *MockCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			delete(m.ttl, key)
			n++
		}
	}
	return n, nil
}

// TTL returns the expiration recorded for key
func (m *MockCache) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttl[key]
}

// Len returns the number of stored keys
func (m *MockCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
