// Package memory provides an in-memory usage store for testing and
// lightweight deployments. Records are lost on restart; a bounded ring
// keeps memory use flat under sustained traffic.
package memory

import (
	"context"
	"sync"

	"github.com/unillm/unillm/pkg/storage"
)

// Store is an in-memory usage store with a bounded record ring.
type Store struct {
	mu      sync.RWMutex
	records []storage.UsageRecord
	next    int
	full    bool
	max     int
	closed  bool
}

var _ storage.Store = (*Store)(nil)

// New creates an in-memory store keeping at most maxRecords records; the
// oldest record is overwritten once the ring is full. maxRecords must be
// positive.
func New(maxRecords int) *Store {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	return &Store{records: make([]storage.UsageRecord, maxRecords), max: maxRecords}
}

// SaveUsage appends one record, overwriting the oldest at capacity.
func (s *Store) SaveUsage(_ context.Context, rec *storage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	s.records[s.next] = *rec
	s.next++
	if s.next == s.max {
		s.next = 0
		s.full = true
	}
	return nil
}

// TotalsByModel aggregates the retained records per model.
func (s *Store) TotalsByModel(_ context.Context) (map[string]storage.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	totals := make(map[string]storage.Totals)
	for _, rec := range s.snapshot() {
		t := totals[rec.ModelID]
		t.Requests++
		t.PromptTokens += int64(rec.PromptTokens)
		t.CompletionTokens += int64(rec.CompletionTokens)
		t.TotalTokens += int64(rec.TotalTokens)
		totals[rec.ModelID] = t
	}
	return totals, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]storage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	recs := s.snapshot()
	if limit > len(recs) {
		limit = len(recs)
	}
	out := make([]storage.UsageRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

// Close marks the store closed; later operations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// snapshot returns retained records oldest first. Callers hold the lock.
func (s *Store) snapshot() []storage.UsageRecord {
	if !s.full {
		return s.records[:s.next]
	}
	out := make([]storage.UsageRecord, 0, s.max)
	out = append(out, s.records[s.next:]...)
	out = append(out, s.records[:s.next]...)
	return out
}
