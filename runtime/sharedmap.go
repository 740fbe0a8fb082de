// Package runtime coordinates execution of a rewritten program graph across
// the client and its servers: the per-program shared maps (spec.md §4.1),
// the two-phase spawn/redirect execution engine (spec.md §4.5.3), and the
// client-server wire protocol drivers (spec.md §4.5.2).
package runtime

import (
	"fmt"
	"sync"

	"github.com/dashrun/dash/cmn/cos"
)

// SharedMap is the mutex-protected "insert once, remove once" map spec.md
// §4.1 describes for the pipe map, stream map, and channel map: insert fails
// if the key is already present, remove fails if the key is absent. Neither
// failure panics — callers see it as an ordinary error.
type SharedMap[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

func NewSharedMap[K comparable, V any]() *SharedMap[K, V] {
	return &SharedMap[K, V]{m: make(map[K]V)}
}

func (s *SharedMap[K, V]) Insert(key K, val V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return cos.NewErrDuplicateKey(fmt.Sprint(key))
	}
	s.m[key] = val
	return nil
}

// Remove deletes key and returns its value; it is an error if key is absent.
func (s *SharedMap[K, V]) Remove(key K) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		var zero V
		return zero, cos.NewErrMissingKey(fmt.Sprint(key))
	}
	delete(s.m, key)
	return v, nil
}

// Peek returns key's value without removing it, for callers (like
// Server.engineFor reusing an existing Engine) that must inspect a value
// that stays in the map.
func (s *SharedMap[K, V]) Peek(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *SharedMap[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
