package store

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	calls   MemoryCalls

	// FailLoad and FailSave, when set, are returned by the next calls.
	FailLoad error
	FailSave error
}

// MemoryCalls tracks method invocations for test verification.
type MemoryCalls struct {
	Load int
	Save int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load returns the stored history for key.
func (m *MemoryStore) Load(_ context.Context, key string) (history.History, bool, error) {
	if err := history.ValidateKey(key); err != nil {
		return history.History{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Load++

	if m.FailLoad != nil {
		return history.History{}, false, loadError(key, m.FailLoad)
	}
	data, ok := m.records[key]
	if !ok {
		return history.History{}, false, nil
	}
	h, err := decodeRecord(key, data)
	if err != nil {
		return history.History{}, false, err
	}
	return h, true, nil
}

// Save replaces the stored history for key.
func (m *MemoryStore) Save(_ context.Context, key string, h history.History) error {
	if err := history.ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Save++

	if m.FailSave != nil {
		return saveError(key, m.FailSave)
	}
	data, err := history.Encode(h)
	if err != nil {
		return saveError(key, err)
	}
	m.records[key] = data
	return nil
}

// Raw returns the encoded record for key, as persisted.
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[key]
	return data, ok
}

// Calls returns a snapshot of the call counters.
func (m *MemoryStore) Calls() MemoryCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Close releases resources.
func (m *MemoryStore) Close() error { return nil }
