package store

import (
	"context"
	"sync"

	"math-canvas/api/internal/calc/types"
)

type MemoryStore struct {
	m sync.Map // key -> types.Variables
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context, key string) (types.Variables, error) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(types.Variables).Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, vars types.Variables) error {
	s.m.Store(key, vars.Clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.m.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
