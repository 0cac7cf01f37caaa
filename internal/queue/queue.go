// Package queue implements the durable per-key job queue behind the scan
// pipeline. All durability lives behind the Store interface: production
// uses the Redis store, tests use the in-memory store.
package queue

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// ErrNotFound is returned when no entry exists under the requested key.
var ErrNotFound = errors.New("queue: entry not found")

// Entry is one durable queue entry, keyed by its logical job key.
type Entry struct {
	Key         string
	ID          string // unique per enqueue, survives retries
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	Backoff     time.Duration // initial backoff, doubled per failed attempt
	NextRunAt   time.Time
	CreatedAt   time.Time
	LastError   string
}

// Options control retry and retention behaviour of an enqueued entry.
type Options struct {
	MaxAttempts  int
	Backoff      time.Duration // first retry delay; doubles each attempt
	CompletedTTL time.Duration // how long completed entries stay readable
	FailedTTL    time.Duration // how long failed entries stay readable
}

// DefaultOptions matches the scan retry policy: 3 attempts with exponential
// backoff from 10s, completed entries kept 1h, failed entries kept 24h.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		Backoff:      10 * time.Second,
		CompletedTTL: time.Hour,
		FailedTTL:    24 * time.Hour,
	}
}

// RetainedCap bounds how many completed and failed entries are indexed for
// inspection. Older entries beyond the cap are dropped from the index.
const RetainedCap = 1000

// Store is the durable queue backend. Implementations must guarantee that
// DueJobs hands each due entry to exactly one caller (claim semantics) even
// under concurrent drains.
type Store interface {
	// Add inserts a new waiting entry under key, replacing nothing: callers
	// that want supersede semantics must Remove first.
	Add(ctx context.Context, key string, payload []byte, opts Options) (*Entry, error)

	// GetByKey returns the entry under key or ErrNotFound.
	GetByKey(ctx context.Context, key string) (*Entry, error)

	// Remove deletes the entry under key regardless of its state. Removing
	// a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// DueJobs claims and returns up to n entries whose NextRunAt has
	// passed, marking each active.
	DueJobs(ctx context.Context, n int) ([]*Entry, error)

	// MarkSucceeded transitions the entry to completed and starts its
	// retention countdown.
	MarkSucceeded(ctx context.Context, key string) error

	// MarkFailed records a failed attempt. If attempts remain the entry is
	// re-scheduled as delayed with exponential backoff; otherwise it is
	// marked failed and retained for inspection.
	MarkFailed(ctx context.Context, key string, reason string) error

	// State returns the entry's lifecycle status or ErrNotFound.
	State(ctx context.Context, key string) (Status, error)
}

// nextBackoff returns the delay before attempt number attempts+1, doubling
// the base per completed attempt: base, 2*base, 4*base, …
func nextBackoff(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
