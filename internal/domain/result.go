package domain

import "os"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProcessingResult is the terminal outcome of one item. It is created once
// per item per attempt-sequence and never mutated; a resumed run that
// reprocesses an item supersedes the old record with a fresh one.
type ProcessingResult struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Status        string   `json:"status"`
	URLs          []string `json:"urls,omitempty"`
	FilePaths     []string `json:"file_paths,omitempty"`
	Error         string   `json:"error,omitempty"`
	ErrorCategory string   `json:"error_category,omitempty"`
}

func (r ProcessingResult) Completed() bool {
	return r.Status == StatusCompleted
}

// IsValid reports whether a previously recorded result can still be trusted
// on resume: it completed, and every downloaded artifact is still on disk.
// A completed record whose files were cleaned up has gone stale and must be
// regenerated rather than reused.
func (r ProcessingResult) IsValid() bool {
	if !r.Completed() || len(r.FilePaths) == 0 {
		return false
	}
	for _, path := range r.FilePaths {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}
