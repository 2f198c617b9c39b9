// Package memkv is a map-backed kv.Store used by tests and as the
// last-resort tier when no storage substrate is available at all.
package memkv

import (
	"context"
	"sort"
	"sync"

	"github.com/halfmoonlabs/engram/pkg/kv"
)

// Store implements kv.Store in process memory.
type Store struct {
	mu      sync.RWMutex
	records map[string]kv.Record
}

func New() *Store {
	return &Store{records: make(map[string]kv.Record)}
}

func (s *Store) Put(_ context.Context, rec kv.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
	return nil
}

func (s *Store) GetAllByOwner(_ context.Context, owner string) ([]kv.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []kv.Record
	for _, rec := range s.records {
		if rec.Owner == owner {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *Store) DeleteByOwner(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.records {
		if rec.Owner == owner {
			delete(s.records, key)
		}
	}
	return nil
}

func (s *Store) Scan(_ context.Context, fn func(kv.Record) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		s.mu.RLock()
		rec, ok := s.records[key]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Len reports the number of stored records. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure Store implements kv.Store
var _ kv.Store = (*Store)(nil)
