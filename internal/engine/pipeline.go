package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Hunselvm/genai/internal/domain"
)

// Pipeline chains image generation into video generation: every logical
// item first renders a still, and each still that survives validation seeds
// a frames-to-video request. The two stages run as independent engine
// batches with their own tuning and rate limits, sharing one job record
// through "_img"/"_vid" suffixed result keys.
type Pipeline struct {
	client Generator
	opts   Options
	logger *zap.SugaredLogger

	mu      sync.Mutex
	stopped bool
	active  *Engine
}

func NewPipeline(client Generator, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{client: client, opts: opts, logger: logger}
}

// RequestStop forwards a graceful stop to whichever stage engine is
// running, and marks the pipeline so a stage that has not started yet
// begins already stopped.
func (p *Pipeline) RequestStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.active != nil {
		p.active.RequestStop()
	}
}

func (p *Pipeline) stageEngine(cfg Config) *Engine {
	eng := New(p.client, cfg, p.opts)
	p.mu.Lock()
	if p.stopped {
		eng.RequestStop()
	}
	p.active = eng
	p.mu.Unlock()
	return eng
}

// Run executes both stages and returns one combined record per logical
// item. videoAspect picks the image aspect for stage one, so stills match
// the footage they seed. On resume, stages whose cached results still have
// their files on disk are skipped.
func (p *Pipeline) Run(ctx context.Context, items []domain.ProcessingItem, videoAspect string, job *domain.AutomationJob) (map[string]domain.PipelineResult, error) {
	imageAspect := domain.ImageAspectForVideo(videoAspect)

	p.emit(EventStepStarted, map[string]any{"step": 1, "name": "generating images"})
	if job != nil {
		job.Status = domain.JobStatusRunning
		job.CurrentStep = domain.StepImages
		p.saveJob(job)
	}

	imageResults := make(map[string]domain.ProcessingResult)
	var imageItems []domain.ProcessingItem
	for _, item := range items {
		stageID := domain.ImageStageID(item.ID)
		if job != nil {
			if cached, ok := job.CachedResult(stageID); ok && validateSeedFrame(cached.FilePaths[0]) == nil {
				imageResults[stageID] = cached
				continue
			}
		}
		imageItems = append(imageItems, domain.ProcessingItem{
			ID:                 stageID,
			Prompt:             item.Prompt,
			Count:              1,
			ReferenceFramePath: item.ReferenceFramePath,
		})
	}

	if len(imageItems) > 0 {
		results, err := p.stageEngine(ImagesConfig()).GenerateImagesBatch(ctx, imageItems, imageAspect, job)
		if err != nil {
			return nil, err
		}
		for id, r := range results {
			imageResults[id] = r
		}
	} else {
		p.logger.Infow("image stage fully cached", "items", len(items))
	}

	// Only still frames that completed and decode cleanly move on. Items
	// whose image stage failed simply have no video stage; their failure
	// is already in the image result.
	videoResults := make(map[string]domain.ProcessingResult)
	var videoItems []domain.ProcessingItem
	for _, item := range items {
		imgRes, ok := imageResults[domain.ImageStageID(item.ID)]
		if !ok || !imgRes.Completed() || len(imgRes.FilePaths) == 0 {
			continue
		}
		seed := imgRes.FilePaths[0]
		if err := validateSeedFrame(seed); err != nil {
			p.logger.Warnw("skipping video stage, unusable seed frame", "id", item.ID, "error", err)
			continue
		}
		stageID := domain.VideoStageID(item.ID)
		if job != nil {
			if cached, ok := job.CachedResult(stageID); ok {
				videoResults[stageID] = cached
				continue
			}
		}
		videoItems = append(videoItems, domain.ProcessingItem{
			ID:                 stageID,
			Prompt:             item.Prompt,
			Count:              1,
			ReferenceFramePath: seed,
		})
	}

	p.emit(EventStepStarted, map[string]any{"step": 2, "name": "generating videos"})
	if job != nil {
		job.CurrentStep = domain.StepVideos
		p.saveJob(job)
	}

	if len(videoItems) > 0 {
		results, err := p.stageEngine(VideosConfig()).GenerateVideosBatch(ctx, videoItems, videoAspect, "", job)
		if err != nil {
			return nil, err
		}
		for id, r := range results {
			videoResults[id] = r
		}
	}

	combined := make(map[string]domain.ProcessingResult, len(imageResults)+len(videoResults))
	for id, r := range imageResults {
		combined[id] = r
	}
	for id, r := range videoResults {
		combined[id] = r
	}
	out := domain.AssemblePipeline(items, combined)

	if job != nil {
		job.Status = domain.JobStatusCompleted
		p.saveJob(job)
	}
	return out, nil
}

func (p *Pipeline) saveJob(job *domain.AutomationJob) {
	if p.opts.Saver == nil {
		return
	}
	if err := p.opts.Saver.Save(job); err != nil {
		p.logger.Warnw("saving pipeline job failed", "job_id", job.JobID, "error", err)
	}
}

func (p *Pipeline) emit(event string, data map[string]any) {
	if p.opts.Progress != nil {
		p.opts.Progress(event, data)
	}
}
