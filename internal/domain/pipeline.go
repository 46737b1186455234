package domain

// Suffixes distinguishing a logical item's two pipeline stages inside one
// shared results map, so each stage resumes independently.
const (
	ImageStageSuffix = "_img"
	VideoStageSuffix = "_vid"
)

func ImageStageID(itemID string) string { return itemID + ImageStageSuffix }
func VideoStageID(itemID string) string { return itemID + VideoStageSuffix }

// PipelineResult is the combined outcome for one logical B-Roll item. A nil
// stage means it was never attempted (for the video stage, because the seed
// image never materialized).
type PipelineResult struct {
	ID     string            `json:"id"`
	Prompt string            `json:"prompt"`
	Image  *ProcessingResult `json:"image,omitempty"`
	Video  *ProcessingResult `json:"video,omitempty"`
}

// AssemblePipeline folds a flat results map with stage-suffixed keys back
// into per-item pipeline records, for reporting on a stored job.
func AssemblePipeline(items []ProcessingItem, results map[string]ProcessingResult) map[string]PipelineResult {
	out := make(map[string]PipelineResult, len(items))
	for _, item := range items {
		pr := PipelineResult{ID: item.ID, Prompt: item.Prompt}
		if r, ok := results[ImageStageID(item.ID)]; ok {
			r := r
			pr.Image = &r
		}
		if r, ok := results[VideoStageID(item.ID)]; ok {
			r := r
			pr.Video = &r
		}
		out[item.ID] = pr
	}
	return out
}
