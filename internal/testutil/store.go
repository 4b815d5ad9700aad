package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
)

// InMemoryStore is a goroutine safe map used to back the in-memory repositories.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{items: make(map[string]T)}
}

func (s *InMemoryStore[T]) Create(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; ok {
		return ierr.NewErrorf("item %s already exists", id).Mark(ierr.ErrAlreadyExists)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, ierr.NewErrorf("item %s not found", id).Mark(ierr.ErrNotFound)
	}
	return item, nil
}

func (s *InMemoryStore[T]) Update(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).Mark(ierr.ErrNotFound)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).Mark(ierr.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// List returns the items accepted by filterFn, ordered by sortFn when given.
func (s *InMemoryStore[T]) List(ctx context.Context, filter interface{}, filterFn func(context.Context, T, interface{}) bool, sortFn func(i, j T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			out = append(out, item)
		}
	}
	if sortFn != nil {
		sort.SliceStable(out, func(i, j int) bool { return sortFn(out[i], out[j]) })
	}
	return out, nil
}

// Mutate runs fn with the write lock held so compound read-modify-write
// operations are atomic.
func (s *InMemoryStore[T]) Mutate(fn func(items map[string]T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.items)
}

func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}
