package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means never
	sliding   time.Duration
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Provider. Expired entries are dropped lazily on
// access and by Purge.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ Provider = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the stored content. A hit on a sliding entry
// pushes its expiry forward.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if e.expired(now) {
		delete(m.entries, key)
		return nil, false, nil
	}
	if e.sliding > 0 {
		e.expiresAt = now.Add(e.sliding)
	}
	return append([]byte(nil), e.value...), true, nil
}

// Insert stores content without expiration.
func (m *Memory) Insert(_ context.Context, key string, value []byte) error {
	m.put(key, &memoryEntry{value: value})
	return nil
}

// InsertAbsolute stores content that expires at expiresAt.
func (m *Memory) InsertAbsolute(_ context.Context, key string, value []byte, expiresAt time.Time) error {
	m.put(key, &memoryEntry{value: value, expiresAt: expiresAt})
	return nil
}

// InsertSliding stores content that expires after window without a hit.
func (m *Memory) InsertSliding(_ context.Context, key string, value []byte, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(window),
		sliding:   window,
	}
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Purge drops expired entries and returns how many were removed.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) put(key string, e *memoryEntry) {
	e.value = append([]byte(nil), e.value...)
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}
