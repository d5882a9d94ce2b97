// Package memstore is the in-memory Store implementation used by unit
// tests in place of sqlitestore — the open storage boundary spec.md
// §9 requires.
package memstore

import (
	"sync"
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

type Store struct {
	mu       sync.Mutex
	calls    map[string]model.CallEvent
	cursors  map[string]model.FileCursor
	pricing  map[string]model.PricingEntry
}

func New() *Store {
	return &Store{
		calls:   make(map[string]model.CallEvent),
		cursors: make(map[string]model.FileCursor),
		pricing: make(map[string]model.PricingEntry),
	}
}

func (s *Store) InsertCalls(events []model.CallEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, ev := range events {
		if _, exists := s.calls[ev.MessageUUID]; exists {
			continue
		}
		s.calls[ev.MessageUUID] = ev
		inserted++
	}
	return inserted, nil
}

func (s *Store) LoadCursors() (map[string]model.FileCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.FileCursor, len(s.cursors))
	for k, v := range s.cursors {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SaveCursor(c model.FileCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[c.Path] = c
	return nil
}

func (s *Store) LoadPricing() ([]model.PricingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PricingEntry, 0, len(s.pricing))
	for _, pe := range s.pricing {
		out = append(out, pe)
	}
	return out, nil
}

func (s *Store) SavePricing(entries []model.PricingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pe := range entries {
		s.pricing[pe.Model] = pe
	}
	return nil
}

func (s *Store) RollupHourly(since time.Time) error { return nil }
func (s *Store) RollupDaily(since time.Time) error  { return nil }

func (s *Store) DeleteOlderThan(raw, hourly time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k, ev := range s.calls {
		if ev.Timestamp.Before(raw) {
			delete(s.calls, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Vacuum() error { return nil }
func (s *Store) Close() error  { return nil }

// CallCount is a test-only helper exposing the number of distinct
// persisted calls.
func (s *Store) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
