package destination

import (
	"context"
	"sync"
)

// Memory is an in-memory destination for tests. Upserts with the same
// (kind, key) merge fields into one entity, mirroring the production
// semantics.
type Memory struct {
	mu       sync.Mutex
	entities map[memKey]Record
	upserts  int
}

type memKey struct {
	kind Kind
	key  string
}

// NewMemory creates an empty in-memory destination.
func NewMemory() *Memory {
	return &Memory{entities: make(map[memKey]Record)}
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upserts++
	k := memKey{rec.Kind, rec.Key}
	existing, ok := m.entities[k]
	if !ok {
		cp := rec
		cp.Fields = make(map[string]any, len(rec.Fields))
		for name, v := range rec.Fields {
			cp.Fields[name] = v
		}
		m.entities[k] = cp
		return nil
	}

	if rec.Title != "" {
		existing.Title = rec.Title
	}
	for name, v := range rec.Fields {
		existing.Fields[name] = v
	}
	m.entities[k] = existing
	return nil
}

// Get returns the entity for (kind, key) and whether it exists.
func (m *Memory) Get(kind Kind, key string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entities[memKey{kind, key}]
	return rec, ok
}

// Count returns the number of distinct entities of the given kind.
func (m *Memory) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entities {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// Upserts returns the total number of Upsert calls.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

var _ Destination = (*Memory)(nil)
