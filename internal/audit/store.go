package audit

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Store persists ledger entries. The postgres implementation is the real
// ledger; the in-memory one is the unit-test seam.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64

	// AppendErr, when set, makes every Append fail. Used to test the
	// recorder's best-effort contract.
	AppendErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	entry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Entry
	for _, e := range s.entries {
		if filter.Actor != "" && (e.Actor == nil || *e.Actor != filter.Actor) {
			continue
		}
		if filter.Action != "" && !strings.Contains(e.Action, filter.Action) {
			continue
		}
		if filter.Search != "" {
			payload, _ := json.Marshal(e.Payload)
			if !strings.Contains(string(payload), filter.Search) {
				continue
			}
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first, like the report endpoint.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// All returns every stored entry in append order; test helper.
func (s *MemoryStore) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
