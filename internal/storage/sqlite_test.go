package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func claim(t *testing.T, s *Store, types ...string) *Job {
	t.Helper()
	j, err := s.ClaimNextJob(types)
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	return j
}

// TestMigrationsIdempotent reopens a file database and checks no migration
// is applied twice.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := s1.EnqueueJob(Job{ID: "survives", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migrations %v -> %v", v1, v2)
	}
	if _, err := s2.GetJob("survives"); err != nil {
		t.Errorf("GetJob after reopen: %v", err)
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_jobs_status_run_after", "idx_jobs_created"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found", idx)
		}
	}
}

func TestJobsTableDefaults(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO jobs (id, type) VALUES ('j1', 'video_generate')`); err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	j, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobPending || j.Attempts != 0 || j.MaxAttempts != 3 || j.PayloadJSON != "{}" {
		t.Errorf("defaults = %+v", j)
	}
	if j.ResultJSON != "" || j.LastError != "" {
		t.Errorf("nullable columns = (%q, %q), want empty", j.ResultJSON, j.LastError)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-claim", Type: "video_generate", PayloadJSON: `{"prompt":"p"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got := claim(t, s, "video_generate")
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim" || got.Type != "video_generate" || got.PayloadJSON != `{"prompt":"p"}` {
		t.Errorf("claimed = %+v", got)
	}
	if got.Status != JobRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}

	stored, err := s.GetJob("j-claim")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != JobRunning {
		t.Errorf("stored status = %q, want running", stored.Status)
	}
}

func TestEnqueueJob_DuplicateID(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "dup", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "dup", Type: "x"}); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)
	if got := claim(t, s, "x"); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if got := claim(t, s); got != nil {
		t.Errorf("expected nil for no types, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-future", Type: "x", RunAfter: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if got := claim(t, s, "x"); got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	for _, typ := range []string{"a", "b"} {
		if err := s.EnqueueJob(Job{ID: "j-" + typ, Type: typ}); err != nil {
			t.Fatalf("EnqueueJob %s: %v", typ, err)
		}
	}
	got := claim(t, s, "b")
	if got == nil || got.Type != "b" {
		t.Fatalf("claimed = %+v, want type b", got)
	}
}

func TestClaimNextJob_FIFO(t *testing.T) {
	s := openTestStore(t)

	for i := range 3 {
		if err := s.EnqueueJob(Job{ID: fmt.Sprintf("j-%d", i), Type: "x"}); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}
	for i := range 3 {
		got := claim(t, s, "x")
		if got == nil {
			t.Fatalf("claim %d returned nil", i)
		}
		if want := fmt.Sprintf("j-%d", i); got.ID != want {
			t.Errorf("claim %d = %s, want %s", i, got.ID, want)
		}
	}
	if got := claim(t, s, "x"); got != nil {
		t.Errorf("expected queue drained, got %+v", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-done", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claim(t, s, "x")
	if err := s.CompleteJob("j-done", `{"video_uri":"https://v"}`); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	j, err := s.GetJob("j-done")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobCompleted || j.ResultJSON != `{"video_uri":"https://v"}` {
		t.Errorf("job = %+v", j)
	}
	if !j.Terminal() {
		t.Error("completed job should be terminal")
	}
}

func TestCompleteJob_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.CompleteJob("missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFailJob_RetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-retry", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claim(t, s, "x")

	before := time.Now().UTC().Truncate(time.Second)
	if err := s.FailJob("j-retry", "upstream 503"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	j, err := s.GetJob("j-retry")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobPending || j.Attempts != 1 || j.LastError != "upstream 503" {
		t.Errorf("job = %+v", j)
	}
	if !j.RunAfter.After(before) {
		t.Errorf("run_after %v should be after %v", j.RunAfter, before)
	}
	if got := claim(t, s, "x"); got != nil {
		t.Error("job claimable before its backoff elapsed")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fatal", Type: "x", MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claim(t, s, "x")
	if err := s.FailJob("j-fatal", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	j, err := s.GetJob("j-fatal")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobFailed {
		t.Errorf("status = %q, want failed", j.Status)
	}
}

func TestFailJob_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAbandonJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-abandon", Type: "x", MaxAttempts: 5}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claim(t, s, "x")
	if err := s.AbandonJob("j-abandon", "KEY_RESET_REQUIRED"); err != nil {
		t.Fatalf("AbandonJob: %v", err)
	}

	j, err := s.GetJob("j-abandon")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobFailed || j.Attempts != 1 || j.LastError != "KEY_RESET_REQUIRED" {
		t.Errorf("job = %+v", j)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{100, 65536 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRequeueRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-stuck", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claim(t, s, "x")

	n, err := s.RequeueRunning()
	if err != nil {
		t.Fatalf("RequeueRunning: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}
	if got := claim(t, s, "x"); got == nil || got.ID != "j-stuck" {
		t.Errorf("requeued job not claimable: %+v", got)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetJob("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListJobs(t *testing.T) {
	s := openTestStore(t)

	for i := range 5 {
		typ := "video_generate"
		if i == 2 {
			typ = "other"
		}
		if err := s.EnqueueJob(Job{ID: fmt.Sprintf("j-%d", i), Type: typ}); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	all, err := s.ListJobs("", 10, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	if all[0].ID != "j-4" || all[4].ID != "j-0" {
		t.Errorf("order = %s..%s, want newest first", all[0].ID, all[4].ID)
	}

	videos, err := s.ListJobs("video_generate", 2, 1)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(videos) != 2 || videos[0].ID != "j-3" || videos[1].ID != "j-1" {
		t.Errorf("page = %+v, want j-3, j-1", videos)
	}

	empty, err := s.ListJobs("none", 10, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty list = %#v, want non-nil empty", empty)
	}
}
