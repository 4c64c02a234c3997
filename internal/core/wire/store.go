package wire

import (
	"maps"
	"sync"
)

// Store keeps incrementally merged entities keyed by id.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	merge   func(base, incoming V) V
}

func NewStore[K comparable, V any](merge func(base, incoming V) V) *Store[K, V] {
	return &Store[K, V]{
		entries: make(map[K]V),
		merge:   merge,
	}
}

// Apply merges incoming into the stored entity, creating it when missing, and
// returns the result.
func (s *Store[K, V]) Apply(key K, incoming V) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.merge(s.entries[key], incoming)
	s.entries[key] = merged
	return merged
}

func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	return v, ok
}

func (s *Store[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.entries)
}

// State is the merged view of remote entities built from every decoded
// frame, before any interceptor had a chance to alter it.
type State struct {
	Items  *Store[int64, Item]
	Others *Store[int64, OtherData]

	heroMu sync.RWMutex
	hero   HeroData
}

func NewState() *State {
	return &State{
		Items:  NewStore[int64, Item](MergeItem),
		Others: NewStore[int64, OtherData](MergeOther),
	}
}

// Apply folds the present item, other and hero categories of v into the
// state. Negative item ids are ignored; del=1 removes the entity.
func (s *State) Apply(v View) {
	if items, ok := v.Items(); ok {
		for id, item := range items {
			if id < 0 {
				continue
			}
			if item.Deleted() {
				s.Items.Delete(id)
				continue
			}
			s.Items.Apply(id, item)
		}
	}
	if others, ok := v.Others(); ok {
		for id, other := range others {
			if other.Deleted() {
				s.Others.Delete(id)
				continue
			}
			s.Others.Apply(id, other)
		}
	}
	if hero, ok := v.Hero(); ok {
		s.heroMu.Lock()
		s.hero.Merge(hero)
		s.heroMu.Unlock()
	}
}

func (s *State) Hero() HeroData {
	s.heroMu.RLock()
	defer s.heroMu.RUnlock()

	return s.hero
}
