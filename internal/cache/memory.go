package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds a MemoryStore created with a non-positive size.
const DefaultMemoryEntries = 1000

type memoryKey struct {
	owner string
	key   string
}

// MemoryStore is an in-process Backend holding at most a fixed number of
// entries, evicting the least recently used one when full.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[memoryKey, *Entry]
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates a memory backend with room for maxEntries entries.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	entries, err := lru.New[memoryKey, *Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

// Get returns a copy of the matching entry.
func (m *MemoryStore) Get(_ context.Context, ownerID string, ct ContentType, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(memoryKey{owner: ownerID, key: key})
	if !ok || e.ContentType != ct {
		return nil, ErrCacheMiss
	}
	return e.clone(), nil
}

// Upsert stores a copy of e.
func (m *MemoryStore) Upsert(_ context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey{owner: e.OwnerID, key: e.Key}
	stored := e.clone()
	if prev, ok := m.entries.Peek(k); ok && !prev.CreatedAt.IsZero() {
		stored.CreatedAt = prev.CreatedAt
	}
	m.entries.Add(k, stored)
	return nil
}

// Touch records one access. It does not promote the entry in the LRU order
// beyond what Get already did.
func (m *MemoryStore) Touch(_ context.Context, ownerID string, ct ContentType, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Peek(memoryKey{owner: ownerID, key: key})
	if !ok || e.ContentType != ct {
		return ErrCacheMiss
	}
	e.AccessCount++
	e.AccessedAt = at
	return nil
}

// Counts aggregates the entries of one owner.
func (m *MemoryStore) Counts(_ context.Context, ownerID string, ct ContentType) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, k := range m.entries.Keys() {
		if k.owner != ownerID {
			continue
		}
		e, ok := m.entries.Peek(k)
		if !ok || (ct != "" && e.ContentType != ct) {
			continue
		}
		c.Entries++
		c.Accesses += e.AccessCount
		c.Bytes += e.Payload.Size()
	}
	return c, nil
}

// DeleteOlderThan removes entries last accessed before cutoff.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, ownerID string, cutoff time.Time) (int64, error) {
	return m.removeWhere(func(k memoryKey, e *Entry) bool {
		return (ownerID == "" || k.owner == ownerID) && e.AccessedAt.Before(cutoff)
	}), nil
}

// Purge removes all entries of one owner.
func (m *MemoryStore) Purge(_ context.Context, ownerID string, ct ContentType) (int64, error) {
	return m.removeWhere(func(k memoryKey, e *Entry) bool {
		return k.owner == ownerID && (ct == "" || e.ContentType == ct)
	}), nil
}

func (m *MemoryStore) removeWhere(match func(memoryKey, *Entry) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for _, k := range m.entries.Keys() {
		e, ok := m.entries.Peek(k)
		if ok && match(k, e) {
			m.entries.Remove(k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	return m.entries.Len()
}

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.entries.Purge()
	return nil
}
