package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/settings"
	"github.com/forqio/forq/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "forq.db"),
		sqlite.WithBackoff(backoff.NewConstant(time.Millisecond)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return st
}

func newJob(jobID string, maxRetries int) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		ID:             jobID,
		Command:        "true",
		State:          job.StatePending,
		MaxRetries:     maxRetries,
		NextEligibleAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStore_InsertClaimComplete(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("lifecycle", 3)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	wid := id.NewWorkerID()
	claimed, err := st.ClaimNext(ctx, wid, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != "lifecycle" {
		t.Fatalf("ClaimNext = %+v, want job lifecycle", claimed)
	}
	if claimed.State != job.StateRunning {
		t.Fatalf("state = %s, want %s", claimed.State, job.StateRunning)
	}
	if claimed.ClaimedBy.String() != wid.String() {
		t.Fatalf("claimed_by = %s, want %s", claimed.ClaimedBy, wid)
	}
	if claimed.StartedAt == nil {
		t.Fatal("started_at not set on claim")
	}

	done, err := st.Complete(ctx, "lifecycle", job.Outcome{Success: true, At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.State != job.StateSucceeded || done.Attempts != 1 {
		t.Fatalf("completed job = %+v, want succeeded with 1 attempt", done)
	}
	if !done.ClaimedBy.IsNil() {
		t.Fatalf("claimed_by = %s, want cleared", done.ClaimedBy)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestStore_DuplicateInsert(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("dup", 0)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := st.Insert(ctx, newJob("dup", 0)); !errors.Is(err, forq.ErrDuplicateJob) {
		t.Fatalf("second Insert error = %v, want ErrDuplicateJob", err)
	}
}

func TestStore_ClaimRespectsEligibility(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	j := newJob("future", 0)
	j.NextEligibleAt = time.Now().UTC().Add(time.Hour)
	if err := st.Insert(ctx, j); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	claimed, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s, want nothing eligible", claimed.ID)
	}
}

func TestStore_ClaimOrdering(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, jobID := range []string{"third", "first", "second"} {
		j := newJob(jobID, 0)
		switch jobID {
		case "first":
			j.NextEligibleAt = base
		case "second":
			j.NextEligibleAt = base.Add(time.Second)
		case "third":
			j.NextEligibleAt = base.Add(2 * time.Second)
		}
		j.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		if err := st.Insert(ctx, j); err != nil {
			t.Fatalf("Insert %s: %v", jobID, err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		claimed, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if claimed == nil || claimed.ID != want {
			t.Fatalf("claimed %+v, want %s", claimed, want)
		}
	}
}

func TestStore_ConcurrentClaimSingleWinner(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("contested", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const claimers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC())
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if j != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestStore_FailureRetryThenDeadLetter(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("flaky", 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// First failure: back to pending with one attempt.
	if _, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	updated, err := st.Complete(ctx, "flaky", job.Outcome{ExitCode: 1, Err: "exit status 1", At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated.State != job.StatePending || updated.Attempts != 1 {
		t.Fatalf("after first failure = %+v, want pending with 1 attempt", updated)
	}
	if updated.LastError != "exit status 1" {
		t.Fatalf("last_error = %q", updated.LastError)
	}

	// Second failure exhausts the budget.
	time.Sleep(5 * time.Millisecond)
	if _, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("second ClaimNext: %v", err)
	}
	updated, err = st.Complete(ctx, "flaky", job.Outcome{ExitCode: 1, Err: "exit status 1", At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if updated.State != job.StateDeadLetter || updated.Attempts != 2 {
		t.Fatalf("after second failure = %+v, want dead_letter with 2 attempts", updated)
	}
}

func TestStore_CompleteIsNotRepeatable(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("once", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := st.Complete(ctx, "once", job.Outcome{Success: true, At: time.Now().UTC()}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := st.Complete(ctx, "once", job.Outcome{ExitCode: 1, At: time.Now().UTC()}); !errors.Is(err, forq.ErrInvalidTransition) {
			t.Fatalf("repeat Complete error = %v, want ErrInvalidTransition", err)
		}
	}

	j, err := st.Get(ctx, "once")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.State != job.StateSucceeded || j.Attempts != 1 {
		t.Fatalf("job mutated by rejected Complete: %+v", j)
	}
}

func TestStore_CompleteUnknownJob(t *testing.T) {
	t.Parallel()

	st := openStore(t)

	_, err := st.Complete(context.Background(), "ghost", job.Outcome{Success: true, At: time.Now().UTC()})
	if !errors.Is(err, forq.ErrJobNotFound) {
		t.Fatalf("Complete error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_ListAndCount(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		j := newJob(fmt.Sprintf("list-%d", i), 0)
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := st.Insert(ctx, j); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := st.List(ctx, "", job.ListOpts{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List all = %d jobs, want 4", len(all))
	}
	for i, j := range all {
		if want := fmt.Sprintf("list-%d", i); j.ID != want {
			t.Fatalf("order: job[%d] = %s, want %s", i, j.ID, want)
		}
	}

	page, err := st.List(ctx, job.StatePending, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 2 || page[0].ID != "list-1" || page[1].ID != "list-2" {
		t.Fatalf("page = %v", page)
	}

	counts, err := st.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState: %v", err)
	}
	if counts[job.StatePending] != 4 {
		t.Fatalf("pending count = %d, want 4", counts[job.StatePending])
	}
	if counts[job.StateDeadLetter] != 0 {
		t.Fatalf("dead_letter count = %d, want 0", counts[job.StateDeadLetter])
	}
}

func TestStore_RequeueSemantics(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	// Requeue only applies to dead-lettered jobs.
	if err := st.Insert(ctx, newJob("req", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Requeue(ctx, "req"); !errors.Is(err, forq.ErrInvalidTransition) {
		t.Fatalf("Requeue pending error = %v, want ErrInvalidTransition", err)
	}
	if err := st.Requeue(ctx, "ghost"); !errors.Is(err, forq.ErrJobNotFound) {
		t.Fatalf("Requeue unknown error = %v, want ErrJobNotFound", err)
	}

	if _, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := st.Complete(ctx, "req", job.Outcome{ExitCode: 1, Err: "boom", At: time.Now().UTC()}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := st.Requeue(ctx, "req"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	j, err := st.Get(ctx, "req")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.State != job.StatePending || j.Attempts != 0 {
		t.Fatalf("requeued job = %+v, want pending with 0 attempts", j)
	}
	if j.LastError != "boom" {
		t.Fatalf("last_error = %q, want preserved", j.LastError)
	}
	if j.CompletedAt != nil {
		t.Fatal("completed_at not cleared on requeue")
	}
}

func TestStore_ReapStale(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, newJob("stale", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := st.ClaimNext(ctx, id.NewWorkerID(), time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	reaped, err := st.ReapStale(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if len(reaped) != 1 || reaped[0].ID != "stale" {
		t.Fatalf("reaped = %v, want [stale]", reaped)
	}
	if reaped[0].State != job.StatePending {
		t.Fatalf("reaped state = %s, want pending", reaped[0].State)
	}
	if reaped[0].Attempts != 0 {
		t.Fatalf("reaped attempts = %d, want unchanged 0", reaped[0].Attempts)
	}
}

func TestStore_Settings(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if _, err := st.GetSetting(ctx, settings.KeyBaseBackoff); !errors.Is(err, forq.ErrSettingNotFound) {
		t.Fatalf("GetSetting unset error = %v, want ErrSettingNotFound", err)
	}

	if err := st.SetSetting(ctx, settings.KeyBaseBackoff, "5s"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, settings.KeyBaseBackoff, "7s"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	v, err := st.GetSetting(ctx, settings.KeyBaseBackoff)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "7s" {
		t.Fatalf("setting = %q, want 7s", v)
	}
}
