package requestlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 20

// MemoryStore implements Store with a bounded in-memory buffer.
// Once the buffer holds more than its capacity the oldest entry is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []*Entry
	maxEntries int
}

// NewMemoryStore creates a new MemoryStore with the given capacity.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultCapacity
	}
	return &MemoryStore{
		entries:    make([]*Entry, 0, maxEntries+1),
		maxEntries: maxEntries,
	}
}

// Log records an entry, assigning an ID and timestamp when missing.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	// FIFO eviction: drop the single oldest entry once over capacity
	if len(s.entries) > s.maxEntries {
		copy(s.entries, s.entries[1:])
		s.entries[len(s.entries)-1] = nil
		s.entries = s.entries[:len(s.entries)-1]
	}
}

// List returns a copy of the current entries in insertion order.
func (s *MemoryStore) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Entry, len(s.entries))
	copy(result, s.entries)
	return result
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Capacity returns the maximum number of entries retained.
func (s *MemoryStore) Capacity() int {
	return s.maxEntries
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
