// Package memory keeps mappings and clicks in process memory. It backs
// DB_DRIVER=memory and the engine tests; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

type Store struct {
	mu       sync.RWMutex
	mappings map[string]shortener.Mapping
	clicks   map[string][]shortener.ClickEvent
}

func New() *Store {
	return &Store{
		mappings: make(map[string]shortener.Mapping),
		clicks:   make(map[string][]shortener.ClickEvent),
	}
}

func (s *Store) InsertMapping(_ context.Context, m *shortener.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.mappings[m.Code]; taken {
		return shortener.ErrCodeConflict
	}
	s.mappings[m.Code] = *m
	return nil
}

func (s *Store) FindMapping(_ context.Context, code string) (*shortener.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}
	return &m, nil
}

func (s *Store) AppendClick(_ context.Context, ev *shortener.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[ev.MappingCode]; !ok {
		return shortener.ErrNotFound
	}
	s.clicks[ev.MappingCode] = append(s.clicks[ev.MappingCode], *ev)
	return nil
}

func (s *Store) ListClicks(_ context.Context, code string) ([]shortener.ClickEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shortener.ClickEvent, len(s.clicks[code]))
	copy(out, s.clicks[code])
	return out, nil
}

func (s *Store) Close() error { return nil }

var (
	_ shortener.MappingStore = (*Store)(nil)
	_ shortener.ClickLog     = (*Store)(nil)
)
