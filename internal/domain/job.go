package domain

import "time"

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusPaused    = "paused"
	JobStatusCompleted = "completed"

	ModeImages        = "images"
	ModeVideos        = "videos"
	ModeBRollPipeline = "broll_pipeline"

	StepImages = "images"
	StepVideos = "videos"
)

// AutomationJob is the resumable record of one whole batch. The engine
// checkpoints it after every item, so a crash loses at most the item that
// was in flight. Result keys are item ids, plus "<id>_img"/"<id>_vid"
// suffixed ids for pipeline runs.
type AutomationJob struct {
	JobID          string                      `json:"job_id"`
	Mode           string                      `json:"mode"`
	Items          []ProcessingItem            `json:"items"`
	Results        map[string]ProcessingResult `json:"results"`
	CompletedCount int                         `json:"completed_count"`
	FailedCount    int                         `json:"failed_count"`
	Status         string                      `json:"status"`
	CurrentStep    string                      `json:"current_step,omitempty"`
	Settings       map[string]string           `json:"settings,omitempty"`
	LastUpdated    time.Time                   `json:"last_updated"`
}

func (j *AutomationJob) TotalCount() int {
	return len(j.Items)
}

func (j *AutomationJob) RemainingCount() int {
	return j.TotalCount() - j.CompletedCount - j.FailedCount
}

// IsResumable reports whether the job was interrupted with work left.
func (j *AutomationJob) IsResumable() bool {
	if j.Status != JobStatusRunning && j.Status != JobStatusPaused {
		return false
	}
	return j.RemainingCount() > 0
}

// PendingItems returns the items that have no recorded result yet.
func (j *AutomationJob) PendingItems() []ProcessingItem {
	pending := make([]ProcessingItem, 0, len(j.Items))
	for _, item := range j.Items {
		if _, done := j.Results[item.ID]; !done {
			pending = append(pending, item)
		}
	}
	return pending
}

// Update records an item's result and bumps the counters. Note: updating
// the same id twice counts it twice; counters are cumulative over a job's
// whole life, including re-runs of superseded results.
func (j *AutomationJob) Update(itemID string, result ProcessingResult) {
	if j.Results == nil {
		j.Results = make(map[string]ProcessingResult)
	}
	j.Results[itemID] = result

	switch result.Status {
	case StatusCompleted:
		j.CompletedCount++
	case StatusFailed:
		j.FailedCount++
	}
	j.LastUpdated = time.Now().UTC()
}

// CachedResult returns a still-valid completed result for the given id, or
// false when the id is unknown, failed, or its files are gone.
func (j *AutomationJob) CachedResult(itemID string) (ProcessingResult, bool) {
	result, ok := j.Results[itemID]
	if !ok || !result.IsValid() {
		return ProcessingResult{}, false
	}
	return result, true
}
