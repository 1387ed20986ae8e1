// Package store provides the persistence adapters of the holdings engine:
// in memory, JSONL files and SQLite. All of them apply a holdings.Commit as
// one atomic unit and detect concurrent writers through record versions.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/etnz/holdings"
)

// Memory keeps records in memory. Useful for tests or ephemeral runs where
// persistence is not required.
type Memory struct {
	mu      sync.RWMutex
	records map[string]holdings.Record
	rates   *holdings.RateTable
}

var _ holdings.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]holdings.Record)}
}

func (s *Memory) CreatePosition(ctx context.Context, rec holdings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.Position.ID
	if _, ok := s.records[id]; ok {
		return fmt.Errorf("%w: %q", holdings.ErrPositionExists, id)
	}
	rec.Version = 1
	s.records[id] = clone(rec)
	return nil
}

func (s *Memory) LoadPosition(ctx context.Context, id string) (holdings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return holdings.Record{}, fmt.Errorf("%w: %q", holdings.ErrPositionNotFound, id)
	}
	return clone(rec), nil
}

func (s *Memory) ListPositions(ctx context.Context) ([]holdings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]holdings.Record, 0, len(s.records))
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		res = append(res, clone(s.records[id]))
	}
	return res, nil
}

func (s *Memory) Commit(ctx context.Context, c holdings.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Position.ID
	cur, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %w: %q", holdings.ErrAtomicWriteFailed, holdings.ErrPositionNotFound, id)
	}
	if cur.Version != c.BaseVersion {
		return conflict(id, c.BaseVersion, cur.Version)
	}
	s.records[id] = clone(holdings.Record{
		Position:  c.Position,
		Events:    c.Events,
		Aggregate: c.Aggregate,
		Version:   cur.Version + 1,
	})
	return nil
}

func (s *Memory) SaveRates(ctx context.Context, t *holdings.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = t // tables are immutable
	return nil
}

func (s *Memory) LoadRates(ctx context.Context) (*holdings.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates, nil
}

func (s *Memory) Close() error { return nil }

// clone copies the slices of rec so that callers never share them with the
// store.
func clone(rec holdings.Record) holdings.Record {
	rec.Events = slices.Clone(rec.Events)
	rec.Aggregate.Warnings = slices.Clone(rec.Aggregate.Warnings)
	return rec
}

func conflict(id string, base, current int64) error {
	return fmt.Errorf("%w: %w: position %q is at version %d, mutation was computed from %d",
		holdings.ErrAtomicWriteFailed, holdings.ErrConflict, id, current, base)
}
