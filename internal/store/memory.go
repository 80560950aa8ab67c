package store

import (
	"context"
	"sync"
)

// Memory is a thread-safe in-process Store. Contents are lost on exit.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
	reads   int
	hits    int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Get retrieves a value.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	v, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return v, ok, nil
}

// Set stores a value.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Stats returns store statistics.
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"backend":    "memory",
		"total_keys": len(m.entries),
		"reads":      m.reads,
		"hits":       m.hits,
	}
}
