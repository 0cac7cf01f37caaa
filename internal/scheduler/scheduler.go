// Package scheduler wires up the optional cron job that periodically runs a
// drain batch in-process. Deployments with an external periodic trigger
// (hitting /internal/drain-batch) leave it disabled.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"jobmate/scan-service/internal/scan"
)

// Scheduler wraps robfig/cron around the drain loop.
type Scheduler struct {
	cron  *cron.Cron
	scans *scan.Service
	opts  scan.DrainOptions
	spec  string // cron spec, e.g. "@every 5m"
}

// New creates a Scheduler that drains every intervalMinutes minutes.
func New(scans *scan.Service, opts scan.DrainOptions, intervalMinutes int) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(cron.DefaultLogger)),
		scans: scans,
		opts:  opts,
		spec:  fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the drain job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runDrain(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

func (s *Scheduler) runDrain(ctx context.Context) {
	log.Println("[scheduler] Drain batch started")
	res, err := s.scans.Drain(ctx, s.opts)
	if err != nil {
		log.Printf("[scheduler] Drain error after %d job(s): %v", res.Processed, err)
		return
	}
	log.Printf("[scheduler] Drain batch complete — processed=%d succeeded=%d failed=%d",
		res.Processed, res.Succeeded, res.Failed)
}
