package jobstore

import (
	"errors"
	"time"

	"github.com/Hunselvm/genai/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// Summary is the listing row for a resumable job.
type Summary struct {
	JobID       string    `json:"job_id"`
	Mode        string    `json:"mode"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	CurrentStep string    `json:"current_step,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store owns the durable representation of automation jobs. Save is an
// idempotent overwrite called after every item update, so implementations
// must make a torn write recoverable (ListResumable skips records it
// cannot decode rather than aborting the scan).
type Store interface {
	Create(mode string, items []domain.ProcessingItem, settings map[string]string) (*domain.AutomationJob, error)
	Save(job *domain.AutomationJob) error
	Load(jobID string) (*domain.AutomationJob, error)
	ListResumable() ([]Summary, error)
	Delete(jobID string) error
	CleanupOlderThan(maxAge time.Duration) (int, error)
}

func summarize(job *domain.AutomationJob) Summary {
	return Summary{
		JobID:       job.JobID,
		Mode:        job.Mode,
		Completed:   job.CompletedCount,
		Failed:      job.FailedCount,
		Total:       job.TotalCount(),
		CurrentStep: job.CurrentStep,
		LastUpdated: job.LastUpdated,
	}
}
