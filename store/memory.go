package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryEntry struct {
	doc     []byte
	version int64
}

// MemoryStore is an in-process Store used by tests and the checker harness.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.docs[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	doc := make([]byte, len(entry.doc))
	copy(doc, entry.doc)
	return doc, entry.version, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, doc []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.docs[key]
	entry.version++
	entry.doc = append([]byte(nil), doc...)
	m.docs[key] = entry
	return entry.version, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, expected int64, doc []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.docs[key]
	if !ok {
		if expected != 0 {
			return 0, ErrVersionMismatch
		}
	} else if entry.version != expected {
		return 0, ErrVersionMismatch
	}

	entry.version++
	entry.doc = append([]byte(nil), doc...)
	m.docs[key] = entry
	return entry.version, nil
}

func (m *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
