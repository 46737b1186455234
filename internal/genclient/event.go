package genclient

// Event is one progress record from the generation API, delivered either as
// an SSE data line or as a history listing entry. A stream ends with a
// terminal status (completed or failed); anything before that is progress.
type Event struct {
	ID              string   `json:"id,omitempty"`
	Status          string   `json:"status"`
	ProgressPercent int      `json:"process_percentage,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	FileURL         string   `json:"file_url,omitempty"`
	FileURLs        []string `json:"file_urls,omitempty"`
	Error           string   `json:"error,omitempty"`
}

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

func (e *Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// ArtifactURLs returns the artifact locations, preferring the multi-URL
// field and falling back to the single-URL one.
func (e *Event) ArtifactURLs() []string {
	if len(e.FileURLs) > 0 {
		return e.FileURLs
	}
	if e.FileURL != "" {
		return []string{e.FileURL}
	}
	return nil
}

// ErrorMessage returns the event's error text with a fallback for terminal
// failures that carry no description.
func (e *Event) ErrorMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return "generation failed"
}
