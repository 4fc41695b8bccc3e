package grouping

import (
	"sync"

	"cablepark/internal/models"
)

// Memo keeps built indexes for the current schedule revision. Entries from an
// older revision are discarded on the first lookup at a newer one.
type Memo struct {
	mu       sync.Mutex
	revision int64
	entries  map[string]*Index
}

func NewMemo() *Memo {
	return &Memo{entries: make(map[string]*Index)}
}

// Get returns the index for key at revision, calling load and Build on a miss.
func (m *Memo) Get(key string, revision int64, load func() []models.Slot) *Index {
	m.mu.Lock()
	defer m.mu.Unlock()

	if revision != m.revision {
		m.entries = make(map[string]*Index)
		m.revision = revision
	}
	if idx, ok := m.entries[key]; ok {
		return idx
	}
	idx := Build(load())
	m.entries[key] = idx
	return idx
}

// Invalidate drops every memoized index.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	m.entries = make(map[string]*Index)
	m.mu.Unlock()
}
