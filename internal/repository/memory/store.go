// Package memory provides the generic keyed store behind the in-memory
// repositories. Uniqueness checks run under the write lock so adapters can
// mirror database constraints.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store when the requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned by Insert when the key or a unique constraint is
// already taken.
var ErrExists = errors.New("already exists")

// Store is a generic thread-safe in-memory key-value store.
type Store[V any] struct {
	mu      sync.RWMutex
	data    map[string]V
	keyFunc func(V) string
}

// New creates a Store with a key extractor function.
func New[V any](keyFunc func(V) string) *Store[V] {
	return &Store[V]{
		data:    make(map[string]V),
		keyFunc: keyFunc,
	}
}

// Set inserts or replaces the value, using keyFunc to derive the key.
func (s *Store[V]) Set(_ context.Context, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.keyFunc(v)] = v
	return nil
}

// Insert adds v unless its key exists or clash reports a collision with a
// stored value. The check and the write happen under one lock.
func (s *Store[V]) Insert(_ context.Context, v V, clash func(existing V) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.keyFunc(v)
	if _, ok := s.data[key]; ok {
		return ErrExists
	}
	if clash != nil {
		for _, existing := range s.data {
			if clash(existing) {
				return ErrExists
			}
		}
	}
	s.data[key] = v
	return nil
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Find returns the first value matching pred, or ErrNotFound.
func (s *Store[V]) Find(_ context.Context, pred func(V) bool) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.data {
		if pred(v) {
			return v, nil
		}
	}
	var zero V
	return zero, ErrNotFound
}

// Delete removes key, or returns ErrNotFound.
func (s *Store[V]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// Filter returns all values for which pred returns true.
func (s *Store[V]) Filter(_ context.Context, pred func(V) bool) ([]V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []V
	for _, v := range s.data {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Has reports whether the key exists.
func (s *Store[V]) Has(_ context.Context, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}
