package state

import (
	"iter"
	"sort"
	"sync"
)

// hotStore is the ephemeral tier: a mutex-guarded map, last write wins.
type hotStore struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newHotStore() *hotStore {
	return &hotStore{entries: make(map[string]any)}
}

func (s *hotStore) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *hotStore) Set(key string, value any) {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

func (s *hotStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Query snapshots the map on each invocation so the sequence is restartable
// and never yields under the lock.
func (s *hotStore) Query(pred Predicate) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		s.mu.RLock()
		keys := make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		snapshot := make(map[string]any, len(keys))
		for _, k := range keys {
			snapshot[k] = s.entries[k]
		}
		s.mu.RUnlock()

		for _, k := range keys {
			v := snapshot[k]
			if pred != nil && !pred(k, v) {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}
