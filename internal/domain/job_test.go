package domain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJobUpdateCounters(t *testing.T) {
	job := &AutomationJob{
		JobID:  "j1",
		Mode:   ModeImages,
		Items:  []ProcessingItem{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Status: JobStatusRunning,
	}

	job.Update("a", ProcessingResult{ID: "a", Status: StatusCompleted})
	job.Update("b", ProcessingResult{ID: "b", Status: StatusFailed})

	if job.CompletedCount != 1 || job.FailedCount != 1 {
		t.Fatalf("expected counts 1/1, got %d/%d", job.CompletedCount, job.FailedCount)
	}
	if job.RemainingCount() != 1 {
		t.Fatalf("expected 1 remaining, got %d", job.RemainingCount())
	}
	if !job.IsResumable() {
		t.Fatal("expected running job with remaining work to be resumable")
	}
	if job.LastUpdated.IsZero() {
		t.Fatal("expected Update to bump LastUpdated")
	}

	pending := job.PendingItems()
	if len(pending) != 1 || pending[0].ID != "c" {
		t.Fatalf("expected pending [c], got %v", pending)
	}
}

// Re-updating an id counts it a second time. That is the documented
// behavior: counters are cumulative, not derived from the results map.
func TestJobUpdateSameIDCountsTwice(t *testing.T) {
	job := &AutomationJob{Items: []ProcessingItem{{ID: "a"}}}

	job.Update("a", ProcessingResult{ID: "a", Status: StatusCompleted})
	job.Update("a", ProcessingResult{ID: "a", Status: StatusCompleted})

	if job.CompletedCount != 2 {
		t.Fatalf("expected cumulative count 2, got %d", job.CompletedCount)
	}
	if len(job.Results) != 1 {
		t.Fatalf("expected single result record, got %d", len(job.Results))
	}
}

func TestJobNotResumableWhenDone(t *testing.T) {
	job := &AutomationJob{
		Items:  []ProcessingItem{{ID: "a"}},
		Status: JobStatusCompleted,
	}
	job.Update("a", ProcessingResult{ID: "a", Status: StatusCompleted})

	if job.IsResumable() {
		t.Fatal("completed job must not be resumable")
	}

	job.Status = JobStatusRunning
	if job.IsResumable() {
		t.Fatal("running job with no remaining work must not be resumable")
	}
}

func TestCachedResultRequiresFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.png")
	if err := os.WriteFile(existing, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := &AutomationJob{Results: map[string]ProcessingResult{
		"ok": {ID: "ok", Status: StatusCompleted, FilePaths: []string{existing}},
		"gone": {ID: "gone", Status: StatusCompleted, FilePaths: []string{
			filepath.Join(dir, "missing.png"),
		}},
		"failed": {ID: "failed", Status: StatusFailed},
		"empty":  {ID: "empty", Status: StatusCompleted},
	}}

	if _, ok := job.CachedResult("ok"); !ok {
		t.Fatal("expected completed result with files on disk to be cached")
	}
	for _, id := range []string{"gone", "failed", "empty", "unknown"} {
		if _, ok := job.CachedResult(id); ok {
			t.Fatalf("expected %q to be treated as stale", id)
		}
	}
}
