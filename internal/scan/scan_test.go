package scan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobmate/scan-service/internal/model"
	"jobmate/scan-service/internal/queue"
	"jobmate/scan-service/internal/scan"
)

// fakeGate approves or rejects every credit check and counts debits.
type fakeGate struct {
	allow  bool
	debits int
}

func (g *fakeGate) CanPerform(context.Context, string, string) (bool, error) {
	return g.allow, nil
}

func (g *fakeGate) Debit(context.Context, string, string) error {
	g.debits++
	return nil
}

// fakeRunner runs scans with a configurable per-profile outcome.
type fakeRunner struct {
	mu      sync.Mutex
	runs    []model.ScanRequest
	failFor map[string]error
}

func (r *fakeRunner) Run(_ context.Context, req model.ScanRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, req)
	if r.failFor != nil {
		if err, ok := r.failFor[req.ProfileID]; ok {
			return err
		}
	}
	return nil
}

func newService(gate *fakeGate, runner *fakeRunner) (*scan.Service, *queue.MemoryStore) {
	store := queue.NewMemoryStore()
	return scan.NewService(store, gate, runner, queue.DefaultOptions()), store
}

// ── Admission ──────────────────────────────────────────────────────────────

func TestRequestScan_InsufficientCreditsRejectsBeforeEnqueue(t *testing.T) {
	gate := &fakeGate{allow: false}
	svc, store := newService(gate, &fakeRunner{})

	_, err := svc.RequestScan(context.Background(), "u1", "p1")
	if err != scan.ErrInsufficientCredits {
		t.Fatalf("RequestScan = %v, want ErrInsufficientCredits", err)
	}
	if _, err := store.GetByKey(context.Background(), scan.JobKey("u1", "p1")); err != queue.ErrNotFound {
		t.Error("rejected request must not leave a queue entry")
	}
	if gate.debits != 0 {
		t.Errorf("rejected request debited %d times, want 0", gate.debits)
	}
}

func TestRequestScan_SecondCallSupersedesTheFirst(t *testing.T) {
	svc, store := newService(&fakeGate{allow: true}, &fakeRunner{})
	ctx := context.Background()

	key1, err := svc.RequestScan(ctx, "u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	first, err := store.GetByKey(ctx, key1)
	if err != nil {
		t.Fatal(err)
	}

	key2, err := svc.RequestScan(ctx, "u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if key1 != key2 {
		t.Fatalf("job key changed between admissions: %q vs %q", key1, key2)
	}

	second, err := store.GetByKey(ctx, key2)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Error("second admission should replace the first entry, not join it")
	}
	if second.Status != queue.StatusWaiting {
		t.Errorf("replacement entry status = %s, want waiting", second.Status)
	}
}

func TestRequestScan_DebitsOncePerAdmission(t *testing.T) {
	gate := &fakeGate{allow: true}
	svc, _ := newService(gate, &fakeRunner{})

	if _, err := svc.RequestScan(context.Background(), "u1", "p1"); err != nil {
		t.Fatal(err)
	}
	if gate.debits != 1 {
		t.Errorf("admission debited %d times, want 1", gate.debits)
	}
}

// ── Status lookup ──────────────────────────────────────────────────────────

func TestGetStatus_IdleWhenNoEntry(t *testing.T) {
	svc, _ := newService(&fakeGate{allow: true}, &fakeRunner{})
	res, err := svc.GetStatus(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != scan.StatusIdle {
		t.Errorf("status = %q, want idle", res.Status)
	}
	if res.JobID != "" {
		t.Errorf("idle status carries a job id: %q", res.JobID)
	}
}

// ── Drain loop bounds ──────────────────────────────────────────────────────

func TestDrain_MaxJobsProcessesExactlyTwoOfFive(t *testing.T) {
	svc, store := newService(&fakeGate{allow: true}, &fakeRunner{})
	ctx := context.Background()

	profiles := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, p := range profiles {
		if _, err := svc.RequestScan(ctx, "u1", p); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.Drain(ctx, scan.DrainOptions{
		Concurrency: 5,
		MaxJobs:     2,
		MaxDuration: time.Second,
		IdleWait:    time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 2 {
		t.Fatalf("processed %d jobs with MaxJobs=2, want 2", res.Processed)
	}

	remaining, err := store.DueJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 3 {
		t.Errorf("%d jobs left due, want 3", len(remaining))
	}
}

func TestDrain_EmptyQueueWaitsOnceAndReturns(t *testing.T) {
	svc, _ := newService(&fakeGate{allow: true}, &fakeRunner{})

	idle := 50 * time.Millisecond
	begin := time.Now()
	res, err := svc.Drain(context.Background(), scan.DrainOptions{
		Concurrency: 2,
		MaxJobs:     10,
		MaxDuration: time.Second,
		IdleWait:    idle,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 {
		t.Errorf("processed = %d on an empty queue, want 0", res.Processed)
	}
	if elapsed := time.Since(begin); elapsed < idle {
		t.Errorf("drain returned after %v, should have waited at least %v", elapsed, idle)
	}
}

func TestDrain_FailingJobDoesNotAbortTheLoop(t *testing.T) {
	runner := &fakeRunner{failFor: map[string]error{"bad": errors.New("scorer unreachable")}}
	svc, store := newService(&fakeGate{allow: true}, runner)
	ctx := context.Background()

	for _, p := range []string{"good1", "bad", "good2"} {
		if _, err := svc.RequestScan(ctx, "u1", p); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.Drain(ctx, scan.DrainOptions{
		Concurrency: 1,
		MaxJobs:     3,
		MaxDuration: time.Second,
		IdleWait:    time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("drain result = %+v, want processed=3 succeeded=2 failed=1", res)
	}

	// The failed job is back in the queue's hands: delayed for retry.
	st, err := store.State(ctx, scan.JobKey("u1", "bad"))
	if err != nil {
		t.Fatal(err)
	}
	if st != queue.StatusDelayed {
		t.Errorf("failed job state = %s, want delayed (retry pending)", st)
	}
}

// ── End-to-end lifecycle scenario ──────────────────────────────────────────

func TestScenario_AdmitDrainCompleteReadmit(t *testing.T) {
	svc, _ := newService(&fakeGate{allow: true}, &fakeRunner{})
	ctx := context.Background()

	if _, err := svc.RequestScan(ctx, "U1", "P1"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.GetStatus(ctx, "U1", "P1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != string(queue.StatusWaiting) {
		t.Fatalf("status after admission = %q, want waiting", res.Status)
	}

	if _, err := svc.Drain(ctx, scan.DrainOptions{
		Concurrency: 1,
		MaxJobs:     1,
		MaxDuration: time.Second,
		IdleWait:    time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	res, err = svc.GetStatus(ctx, "U1", "P1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != string(queue.StatusCompleted) {
		t.Fatalf("status after drain = %q, want completed", res.Status)
	}
	completedID := res.JobID

	// Re-admission supersedes the retained completed entry.
	if _, err := svc.RequestScan(ctx, "U1", "P1"); err != nil {
		t.Fatal(err)
	}
	res, err = svc.GetStatus(ctx, "U1", "P1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != string(queue.StatusWaiting) {
		t.Errorf("status after re-admission = %q, want waiting", res.Status)
	}
	if res.JobID == completedID {
		t.Error("re-admission should create a fresh entry, not reuse the completed one")
	}
}
