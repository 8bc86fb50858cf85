package utils

import (
	"sync"
	"time"
)

// TTLMap is a mutex-guarded map whose entries expire after a fixed duration.
// Setting a key refreshes its deadline. A background sweeper reclaims expired
// entries; reads treat a not-yet-swept expired entry as absent, so expiry is
// exact even between sweeps.
type TTLMap[K comparable, V any] struct {
	mu       sync.RWMutex
	data     map[K]V
	deadline map[K]time.Time
	ttl      time.Duration
}

// NewTTLMap creates a map whose entries live for ttl after their last Set.
// The sweeper runs at half the TTL so stale entries do not linger for a full
// extra lifetime.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		data:     make(map[K]V),
		deadline: make(map[K]time.Time),
		ttl:      ttl,
	}

	go m.sweep()

	return m
}

// Get returns the live value for key, if any.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists || time.Now().After(m.deadline[key]) {
		var zero V
		return zero, false
	}

	return value, true
}

// Set stores value under key with a fresh TTL.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.deadline[key] = time.Now().Add(m.ttl)
}

// Delete removes key immediately.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.deadline, key)
}

// Len counts the entries that are still live.
func (m *TTLMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	n := 0
	for key := range m.data {
		if !now.After(m.deadline[key]) {
			n++
		}
	}
	return n
}

func (m *TTLMap[K, V]) sweep() {
	interval := m.ttl / 2
	if interval <= 0 {
		interval = m.ttl
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for key, deadline := range m.deadline {
			if now.After(deadline) {
				delete(m.data, key)
				delete(m.deadline, key)
			}
		}
		m.mu.Unlock()
	}
}
