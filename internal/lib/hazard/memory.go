package hazard

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process Store. It backs local development when no
// realtime database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	reports  map[string]Report
	watchers map[int]chan Snapshot
	nextID   int
}

// NewMemoryStore creates an empty store seeded with the given reports
func NewMemoryStore(seed ...Report) *MemoryStore {
	s := &MemoryStore{
		reports:  make(map[string]Report),
		watchers: make(map[int]chan Snapshot),
	}
	for _, r := range seed {
		s.reports[r.ID] = r
	}
	return s
}

// Snapshot returns a copy of the current collection
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(), nil
}

// Watch delivers the current snapshot immediately and again after every change.
// Slow watchers only ever see the most recent snapshot.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.copyLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// Submit stores a report and notifies watchers
func (s *MemoryStore) Submit(ctx context.Context, sub Submission) error {
	if sub.ID == "" {
		return errors.New("report id is required")
	}
	s.Put(Report{
		ID:                sub.ID,
		Location:          sub.Location,
		Category:          sub.Category,
		PlaceName:         sub.PlaceName,
		Timestamp:         sub.Timestamp,
		EstimatedTimeText: sub.EstimatedTimeText,
		Comment:           sub.Comment,
		UserID:            sub.UserID,
	})
	return nil
}

// Put inserts or replaces a report
func (s *MemoryStore) Put(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	s.broadcastLocked()
}

// Remove deletes a report
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	s.broadcastLocked()
}

func (s *MemoryStore) broadcastLocked() {
	for _, ch := range s.watchers {
		// Replace any undelivered snapshot with the fresh one
		select {
		case <-ch:
		default:
		}
		ch <- s.copyLocked()
	}
}

func (s *MemoryStore) copyLocked() Snapshot {
	snap := make(Snapshot, len(s.reports))
	for id, r := range s.reports {
		snap[id] = r
	}
	return snap
}
