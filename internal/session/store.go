package session

import (
	"context"
	"sync"
)

// Store persists session records outside the process.
type Store interface {
	// Load returns the last saved record for proxy, or nil when none exists.
	Load(ctx context.Context, proxy string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Load(_ context.Context, proxy string) (*Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.records[proxy]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records[rec.Proxy] = *rec
	return nil
}
