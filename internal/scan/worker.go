package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/scan-service/internal/model"
)

// DrainOptions bound one drain invocation.
type DrainOptions struct {
	Concurrency int           // parallel jobs per batch
	MaxJobs     int           // stop after this many processed jobs
	MaxDuration time.Duration // wall-clock budget, checked between batches
	IdleWait    time.Duration // single wait when the queue reports no due work
}

// DrainResult aggregates one drain invocation.
type DrainResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Drain runs the queue worker loop as a bounded batch: it repeatedly claims
// up to Concurrency due jobs and runs them in parallel, stopping on MaxJobs,
// the wall-clock budget, or an empty queue (after one IdleWait re-check).
// A failing job is marked failed — the queue applies its retry policy — and
// never aborts the loop.
func (s *Service) Drain(ctx context.Context, opts DrainOptions) (DrainResult, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	var res DrainResult
	start := time.Now()
	waited := false

	for {
		if opts.MaxJobs > 0 && res.Processed >= opts.MaxJobs {
			break
		}
		if opts.MaxDuration > 0 && time.Since(start) >= opts.MaxDuration {
			log.Printf("[drain] Wall-clock budget reached after %d job(s)", res.Processed)
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n := opts.Concurrency
		if opts.MaxJobs > 0 && opts.MaxJobs-res.Processed < n {
			n = opts.MaxJobs - res.Processed
		}

		batch, err := s.store.DueJobs(ctx, n)
		if err != nil {
			return res, fmt.Errorf("claim due jobs: %w", err)
		}

		if len(batch) == 0 {
			if waited {
				break
			}
			waited = true
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(opts.IdleWait):
			}
			continue
		}
		waited = false

		var mu sync.Mutex
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, entry := range batch {
			e := entry
			g.Go(func() error {
				ok := s.runOne(gCtx, e.Key, e.Payload)
				mu.Lock()
				res.Processed++
				if ok {
					res.Succeeded++
				} else {
					res.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	log.Printf("[drain] Done — processed=%d succeeded=%d failed=%d",
		res.Processed, res.Succeeded, res.Failed)
	return res, nil
}

// runOne executes a single claimed entry and records the outcome. Errors
// (and panics) are contained here so the loop always proceeds.
func (s *Service) runOne(ctx context.Context, key string, payload []byte) (succeeded bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[drain] Panic in job %s: %v", key, rec)
			s.fail(ctx, key, fmt.Sprintf("panic: %v", rec))
			succeeded = false
		}
	}()

	var req model.ScanRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("[drain] Undecodable payload for %s: %v", key, err)
		s.fail(ctx, key, "undecodable payload: "+err.Error())
		return false
	}

	if err := s.runner.Run(ctx, req); err != nil {
		log.Printf("[drain] Job %s failed: %v", key, err)
		s.fail(ctx, key, err.Error())
		return false
	}

	if err := s.store.MarkSucceeded(ctx, key); err != nil {
		log.Printf("[drain] Could not mark %s succeeded: %v", key, err)
	}
	return true
}

func (s *Service) fail(ctx context.Context, key, reason string) {
	if err := s.store.MarkFailed(ctx, key, reason); err != nil {
		log.Printf("[drain] Could not mark %s failed: %v", key, err)
	}
}
