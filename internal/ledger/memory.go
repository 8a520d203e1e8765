package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory ledger used by tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[identity]Entry
	failures map[identity]int
}

type identity struct {
	account   string
	messageID string
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[identity]Entry),
		failures: make(map[identity]int),
	}
}

func (s *MemoryStore) HasProcessed(_ context.Context, account, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[identity{account, messageID}]
	return ok, nil
}

func (s *MemoryStore) Commit(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := identity{e.Account, e.MessageID}
	if _, ok := s.entries[id]; ok {
		return ErrDuplicate
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}
	if e.Disposition == "" {
		e.Disposition = DispositionProcessed
	}
	s.entries[id] = e
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, window time.Duration) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		ByLabel:    make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}

	for _, e := range s.entries {
		if !cutoff.IsZero() && !e.ProcessedAt.After(cutoff) {
			continue
		}
		stats.Total++
		if e.Disposition == DispositionSkipped {
			stats.Skipped++
		}
		if e.Synced {
			stats.Synced++
		}
		stats.ByLabel[e.CoarseLabel]++
		stats.ByCategory[e.Category]++
	}
	return stats, nil
}

func (s *MemoryStore) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var removed int64
	for id, e := range s.entries {
		if e.ProcessedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, account, messageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity{account, messageID}
	s.failures[id]++
	return s.failures[id], nil
}

func (s *MemoryStore) ClearFailures(_ context.Context, account, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, identity{account, messageID})
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Entries returns a snapshot of committed entries, for tests.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
