package routecache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Expired entries are dropped on read.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string, notBefore time.Time) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if e.CachedAt.Before(notBefore) {
		m.mu.Lock()
		if cur, ok := m.store[key]; ok && cur.CachedAt.Equal(e.CachedAt) {
			delete(m.store, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (m *MemoryStore) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.store[e.Key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
