package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same semantics as the Redis
// store. Used by tests and local development; not durable across restarts.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time // overridable in tests
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's clock. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Add(_ context.Context, key string, payload []byte, opts Options) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e := &Entry{
		Key:         key,
		ID:          uuid.NewString(),
		Payload:     append([]byte(nil), payload...),
		Status:      StatusWaiting,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		NextRunAt:   now,
		CreatedAt:   now,
	}
	s.entries[key] = e
	return copyEntry(e), nil
}

func (s *MemoryStore) GetByKey(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) DueJobs(_ context.Context, n int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	now := s.now()

	var due []*Entry
	for _, e := range s.entries {
		if (e.Status == StatusWaiting || e.Status == StatusDelayed) && !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	// Due-time order, insertion order on ties, matching the zset.
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].NextRunAt.Before(due[j].NextRunAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > n {
		due = due[:n]
	}

	claimed := make([]*Entry, 0, len(due))
	for _, e := range due {
		e.Status = StatusActive
		claimed = append(claimed, copyEntry(e))
	}
	return claimed, nil
}

func (s *MemoryStore) MarkSucceeded(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusCompleted
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, key string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Attempts++
	e.LastError = reason
	if e.Attempts < e.MaxAttempts {
		e.Status = StatusDelayed
		e.NextRunAt = s.now().Add(nextBackoff(e.Backoff, e.Attempts))
		return nil
	}
	e.Status = StatusFailed
	return nil
}

func (s *MemoryStore) State(_ context.Context, key string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.Status, nil
}

func copyEntry(e *Entry) *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}
