// Package scan is the entry point of the pipeline: credit-gated admission
// into the durable queue, status lookup, and the bounded drain loop that
// executes queued scans.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"jobmate/scan-service/internal/model"
	"jobmate/scan-service/internal/queue"
)

// ActionScan is the credit-ledger action kind a scan consumes.
const ActionScan = "job_scan"

// ErrInsufficientCredits is the hard admission rejection: nothing was
// enqueued and nothing was debited.
var ErrInsufficientCredits = errors.New("scan: insufficient credits")

// CreditGate is the billing boundary. The ledger itself lives in the
// surrounding system; the pipeline only asks yes/no and debits.
type CreditGate interface {
	CanPerform(ctx context.Context, userID, action string) (bool, error)
	Debit(ctx context.Context, userID, action string) error
}

// Runner executes one dequeued scan. Implemented by pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req model.ScanRequest) error
}

// Service owns admission, status lookup and draining.
type Service struct {
	store  queue.Store
	gate   CreditGate
	runner Runner
	opts   queue.Options
}

// NewService wires the scan service. opts is the retry/retention policy
// applied to every enqueued scan.
func NewService(store queue.Store, gate CreditGate, runner Runner, opts queue.Options) *Service {
	return &Service{store: store, gate: gate, runner: runner, opts: opts}
}

// JobKey computes the queue key for a (user, profile) pair. The key is the
// dedup identity: at most one live entry exists per key.
func JobKey(userID, profileID string) string {
	return fmt.Sprintf("scan:%s:%s", userID, profileID)
}

// RequestScan admits one scan request: credit check, supersede any pending
// entry under the same key, enqueue, debit — in that order. An enqueue
// failure is returned to the caller as a scheduling failure and is not
// retried here.
func (s *Service) RequestScan(ctx context.Context, userID, profileID string) (string, error) {
	ok, err := s.gate.CanPerform(ctx, userID, ActionScan)
	if err != nil {
		return "", fmt.Errorf("credit check: %w", err)
	}
	if !ok {
		return "", ErrInsufficientCredits
	}

	key := JobKey(userID, profileID)

	// Supersede-on-retry: a fresh scan request restarts rather than joins
	// whatever entry is still under the key.
	if _, err := s.store.GetByKey(ctx, key); err == nil {
		if err := s.store.Remove(ctx, key); err != nil {
			return "", fmt.Errorf("supersede %q: %w", key, err)
		}
		log.Printf("[scan] Superseded pending entry under %s", key)
	} else if err != queue.ErrNotFound {
		return "", fmt.Errorf("lookup %q: %w", key, err)
	}

	payload, err := json.Marshal(model.ScanRequest{UserID: userID, ProfileID: profileID})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := s.store.Add(ctx, key, payload, s.opts); err != nil {
		return "", fmt.Errorf("schedule scan: %w", err)
	}

	if err := s.gate.Debit(ctx, userID, ActionScan); err != nil {
		// The scan stays queued; the ledger reconciles the debit.
		log.Printf("[scan] Debit for %s failed after enqueue: %v", userID, err)
	}

	return key, nil
}

// StatusResult is the status-lookup read model.
type StatusResult struct {
	Status string `json:"status"`
	JobID  string `json:"jobId,omitempty"`
}

// StatusIdle is reported when no entry exists under the key.
const StatusIdle = "idle"

// GetStatus reports the queue lifecycle state for a (user, profile) pair.
func (s *Service) GetStatus(ctx context.Context, userID, profileID string) (StatusResult, error) {
	key := JobKey(userID, profileID)
	e, err := s.store.GetByKey(ctx, key)
	if err == queue.ErrNotFound {
		return StatusResult{Status: StatusIdle}, nil
	}
	if err != nil {
		return StatusResult{}, fmt.Errorf("status %q: %w", key, err)
	}
	return StatusResult{Status: string(e.Status), JobID: e.ID}, nil
}
