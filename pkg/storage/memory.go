package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/absmach/fedcycle/pkg/errors"
)

// orderedStore keeps values in a map and their keys in a sorted slice, so
// listing pages in key order without sorting on every read.
type orderedStore struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

func NewInMemoryStorage() Storage {
	return &orderedStore{values: make(map[string]any)}
}

func (s *orderedStore) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := slices.BinarySearch(s.keys, key)
	if found {
		return errors.ErrEntityExists
	}
	s.keys = slices.Insert(s.keys, i, key)
	s.values[key] = value

	return nil
}

func (s *orderedStore) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, errors.ErrNotFound
	}

	return v, nil
}

func (s *orderedStore) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return errors.ErrNotFound
	}
	s.values[key] = value

	return nil
}

// List returns values in key order.
func (s *orderedStore) List(_ context.Context, offset, limit uint64) ([]any, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := uint64(len(s.keys))
	if offset >= total {
		return nil, total, nil
	}

	end := total
	if limit < total-offset {
		end = offset + limit
	}

	page := make([]any, 0, end-offset)
	for _, k := range s.keys[offset:end] {
		page = append(page, s.values[k])
	}

	return page, total, nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *orderedStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, found := slices.BinarySearch(s.keys, key); found {
		s.keys = slices.Delete(s.keys, i, i+1)
		delete(s.values, key)
	}

	return nil
}
