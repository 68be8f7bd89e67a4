// Package memory is a volatile TransactionStore used by tests and by
// DATA_BACKEND=memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"finboard/internal/core"
	"finboard/internal/storage"
)

type Store struct {
	mu      sync.Mutex
	items   map[string]core.Transaction
	rollups map[string]core.MonthlyAggregate
}

var (
	_ storage.TransactionStore = (*Store)(nil)
	_ storage.RollupStore      = (*Store)(nil)
)

func New(seed ...core.Transaction) *Store {
	s := &Store{
		items:   make(map[string]core.Transaction, len(seed)),
		rollups: make(map[string]core.MonthlyAggregate),
	}
	for _, t := range seed {
		s.items[t.ID] = t
	}
	return s
}

func (s *Store) GetAll(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(core.Transaction) bool { return true }), nil
}

func (s *Store) Get(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) Put(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[t.ID] = stored(t)
	return nil
}

func (s *Store) PutAll(_ context.Context, ts []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		s.items[t.ID] = stored(t)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]core.Transaction)
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, id, category string) error {
	return s.update(id, func(t *core.Transaction) {
		t.Category = strings.TrimSpace(category)
		t.Category = t.CategoryOrDefault()
	})
}

func (s *Store) UpdateNotes(_ context.Context, id, notes string) error {
	return s.update(id, func(t *core.Transaction) { t.Notes = notes })
}

func (s *Store) QueryByIndex(_ context.Context, idx storage.Index, r storage.KeyRange) ([]core.Transaction, error) {
	if err := r.Validate(idx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(t core.Transaction) bool {
		ok, _ := r.Contains(idx, t)
		return ok
	}), nil
}

func (s *Store) GetRollup(_ context.Context, key string) (core.MonthlyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.rollups[key]
	if !ok {
		return core.MonthlyAggregate{}, fmt.Errorf("get rollup %s: %w", key, storage.ErrRollupNotFound)
	}
	agg.CategoryTotals = slices.Clone(agg.CategoryTotals)
	return agg, nil
}

func (s *Store) PutRollups(_ context.Context, aggs []core.MonthlyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range aggs {
		a.CategoryTotals = slices.Clone(a.CategoryTotals)
		s.rollups[a.MonthKey] = a
	}
	return nil
}

func (s *Store) DeleteRollups(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(keys) == 0 {
		clear(s.rollups)
		return nil
	}
	for _, k := range keys {
		delete(s.rollups, k)
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) update(id string, fn func(*core.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	fn(&t)
	s.items[id] = t
	return nil
}

// snapshot must be called with mu held.
func (s *Store) snapshot(keep func(core.Transaction) bool) []core.Transaction {
	out := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		if keep(t) {
			out = append(out, t)
		}
	}
	storage.SortNewestFirst(out)
	return out
}

// stored applies the same defaults the SQLite schema does.
func stored(t core.Transaction) core.Transaction {
	t.Category = t.CategoryOrDefault()
	t.MonthKey = t.Month()
	return t
}
