package engine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/genclient"
	"github.com/Hunselvm/genai/internal/ratelimit"
	"github.com/Hunselvm/genai/internal/retry"
)

// Generator is the slice of the API client the engine consumes. The
// concrete implementation is genclient.Client; tests substitute fakes.
type Generator interface {
	OpenImageStream(ctx context.Context, req genclient.StreamRequest) (genclient.EventStream, error)
	OpenVideoStream(ctx context.Context, req genclient.StreamRequest) (genclient.EventStream, error)
	ListHistory(ctx context.Context, page, pageSize int) ([]genclient.Event, error)
	Download(ctx context.Context, artifactURL string) ([]byte, error)
}

// JobSaver persists the job checkpoint after each item. jobstore.Store
// satisfies it.
type JobSaver interface {
	Save(job *domain.AutomationJob) error
}

// Config holds the per-content-type processing knobs.
type Config struct {
	ContentType       string
	Timeout           time.Duration
	InitialPoll       time.Duration
	MaxPoll           time.Duration
	MaxConcurrent     int
	RequestsPerMinute int
}

// ImagesConfig returns the default tuning for image generation.
func ImagesConfig() Config {
	return Config{
		ContentType:       domain.ModeImages,
		Timeout:           10 * time.Minute,
		InitialPoll:       5 * time.Second,
		MaxPoll:           30 * time.Second,
		MaxConcurrent:     5,
		RequestsPerMinute: 30,
	}
}

// VideosConfig returns the default tuning for video generation. Videos
// render slower, so everything is looser and less parallel.
func VideosConfig() Config {
	return Config{
		ContentType:       domain.ModeVideos,
		Timeout:           20 * time.Minute,
		InitialPoll:       5 * time.Second,
		MaxPoll:           45 * time.Second,
		MaxConcurrent:     3,
		RequestsPerMinute: 20,
	}
}

// Options carries the engine's collaborators. Zero values get working
// defaults: a nop logger, an in-process sliding window limiter sized from
// the Config, a default retry handler, and os.TempDir for downloads.
type Options struct {
	Logger      *zap.SugaredLogger
	Progress    ProgressFunc
	Limiter     ratelimit.Limiter
	Retry       *retry.Handler
	Saver       JobSaver
	Metrics     *Metrics
	DownloadDir string
}

// Engine runs one batch of generation items under bounded concurrency, a
// shared rate limit, and per-item retry. Items are fully independent: one
// item exhausting its retries records a failed result and never aborts its
// siblings.
type Engine struct {
	client      Generator
	cfg         Config
	logger      *zap.SugaredLogger
	progress    ProgressFunc
	limiter     ratelimit.Limiter
	retry       *retry.Handler
	saver       JobSaver
	metrics     *Metrics
	tracer      trace.Tracer
	downloadDir string

	sem     chan struct{}
	stopped atomic.Bool

	mu      sync.Mutex
	results map[string]domain.ProcessingResult
}

func New(client Generator, cfg Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(cfg.RequestsPerMinute)
	}
	handler := opts.Retry
	if handler == nil {
		handler = retry.New(logger)
	}
	downloadDir := opts.DownloadDir
	if downloadDir == "" {
		downloadDir = os.TempDir()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &Engine{
		client:      client,
		cfg:         cfg,
		logger:      logger,
		progress:    opts.Progress,
		limiter:     limiter,
		retry:       handler,
		saver:       opts.Saver,
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("genai/engine"),
		downloadDir: downloadDir,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		results:     make(map[string]domain.ProcessingResult),
	}
}

// RequestStop asks the engine to wind down. Items already past their rate
// limit wait finish normally; queued items short-circuit to a failed result
// so the job record stays complete and resumable.
func (e *Engine) RequestStop() {
	e.stopped.Store(true)
}

// Results returns a copy of everything recorded so far, keyed by item id.
func (e *Engine) Results() map[string]domain.ProcessingResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.ProcessingResult, len(e.results))
	for id, r := range e.results {
		out[id] = r
	}
	return out
}

// GenerateImagesBatch processes items as image generations and returns the
// accumulated results map.
func (e *Engine) GenerateImagesBatch(ctx context.Context, items []domain.ProcessingItem, aspectRatio string, job *domain.AutomationJob) (map[string]domain.ProcessingResult, error) {
	return e.runBatch(ctx, items, job, func(ctx context.Context, item domain.ProcessingItem) domain.ProcessingResult {
		return e.processItem(ctx, item, aspectRatio, "")
	})
}

// GenerateVideosBatch processes items as video generations. startFramePath,
// when set, is the batch-wide seed frame; an item's own ReferenceFramePath
// takes precedence.
func (e *Engine) GenerateVideosBatch(ctx context.Context, items []domain.ProcessingItem, aspectRatio, startFramePath string, job *domain.AutomationJob) (map[string]domain.ProcessingResult, error) {
	return e.runBatch(ctx, items, job, func(ctx context.Context, item domain.ProcessingItem) domain.ProcessingResult {
		frame := item.ReferenceFramePath
		if frame == "" {
			frame = startFramePath
		}
		return e.processItem(ctx, item, aspectRatio, frame)
	})
}

func (e *Engine) runBatch(ctx context.Context, items []domain.ProcessingItem, job *domain.AutomationJob, work func(context.Context, domain.ProcessingItem) domain.ProcessingResult) (map[string]domain.ProcessingResult, error) {
	e.emit(EventBatchStarted, map[string]any{
		"content_type": e.cfg.ContentType,
		"total":        len(items),
	})
	e.logger.Infow("batch started", "content_type", e.cfg.ContentType, "items", len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		item := item.Normalize()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Errorw("item panicked", "id", item.ID, "panic", r)
					e.record(job, item.ID, domain.ProcessingResult{
						ID:     item.ID,
						Prompt: item.Prompt,
						Status: domain.StatusFailed,
						Error:  fmt.Sprintf("panic: %v", r),
					})
				}
			}()
			e.record(job, item.ID, work(ctx, item))
		}()
	}
	wg.Wait()

	results := e.Results()
	completed, failed := 0, 0
	for _, r := range results {
		if r.Completed() {
			completed++
		} else {
			failed++
		}
	}
	e.emit(EventBatchCompleted, map[string]any{
		"content_type": e.cfg.ContentType,
		"completed":    completed,
		"failed":       failed,
	})
	e.logger.Infow("batch completed", "content_type", e.cfg.ContentType, "completed", completed, "failed", failed)
	return results, ctx.Err()
}

// processItem runs one item to a terminal result: concurrency slot, rate
// limit, stream attempt with poll fallback, all under the retry policy,
// then artifact downloads.
func (e *Engine) processItem(ctx context.Context, item domain.ProcessingItem, aspectRatio, startFramePath string) domain.ProcessingResult {
	if e.stopped.Load() {
		return e.stoppedResult(item)
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return e.failedResult(item, ctx.Err().Error())
	}
	defer func() { <-e.sem }()

	if err := e.limiter.Acquire(ctx); err != nil {
		return e.failedResult(item, err.Error())
	}

	// Re-checked after the limiter wait so a stop request that arrived
	// during the wait still lands before remote work starts.
	if e.stopped.Load() {
		return e.stoppedResult(item)
	}

	e.emit(EventItemStarted, map[string]any{"id": item.ID, "prompt": item.Prompt})
	e.metrics.itemStarted()
	started := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.processItem", trace.WithAttributes(
		attribute.String("item.id", item.ID),
		attribute.String("content.type", e.cfg.ContentType),
	))
	defer span.End()

	var final *genclient.Event
	err := e.retry.Do(ctx, func() error {
		ev, attemptErr := e.attemptOnce(ctx, item, aspectRatio, startFramePath)
		if attemptErr != nil {
			return attemptErr
		}
		final = ev
		return nil
	}, func(retryNumber int, delay time.Duration, errMsg string) {
		e.metrics.retryScheduled(retry.Strategy(errMsg))
		e.emit(EventItemRetrying, map[string]any{
			"id":            item.ID,
			"retry":         retryNumber,
			"delay_seconds": delay.Seconds(),
			"error":         errMsg,
		})
	})
	if err != nil {
		category := retry.Categorize(err.Error())
		span.SetStatus(codes.Error, err.Error())
		e.metrics.itemFinished(e.cfg.ContentType, domain.StatusFailed, time.Since(started).Seconds())
		e.emit(EventItemFailed, map[string]any{
			"id":             item.ID,
			"error":          err.Error(),
			"error_category": category,
		})
		e.logger.Warnw("item failed", "id", item.ID, "category", category, "error", err)
		return e.failedResult(item, err.Error())
	}

	urls := final.ArtifactURLs()
	paths := e.downloadArtifacts(ctx, item, urls)

	span.SetStatus(codes.Ok, "")
	e.metrics.itemFinished(e.cfg.ContentType, domain.StatusCompleted, time.Since(started).Seconds())
	e.emit(EventItemCompleted, map[string]any{"id": item.ID, "urls": urls})
	e.logger.Infow("item completed", "id", item.ID, "artifacts", len(urls))

	return domain.ProcessingResult{
		ID:        item.ID,
		Prompt:    item.Prompt,
		Status:    domain.StatusCompleted,
		URLs:      urls,
		FilePaths: paths,
	}
}

// attemptOnce makes one generation attempt: open the stream and consume it
// to a terminal event, and if the stream dies mid-flight, fall back to
// polling the history endpoint. Only the poll path carries the wall-clock
// timeout; a live stream can take as long as it wants.
func (e *Engine) attemptOnce(ctx context.Context, item domain.ProcessingItem, aspectRatio, startFramePath string) (*genclient.Event, error) {
	stream, err := e.openStream(ctx, item, aspectRatio, startFramePath)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err == io.EOF {
			// Stream ended without a terminal event. The generation is
			// likely still running server-side, so chase it via history
			// rather than burning a retry on a fresh generation.
			e.logger.Warnw("stream ended early, falling back to polling", "id", item.ID)
			return e.pollForResult(ctx, item)
		}
		if err != nil {
			e.logger.Warnw("stream read failed, falling back to polling", "id", item.ID, "error", err)
			return e.pollForResult(ctx, item)
		}
		if !ev.Terminal() {
			continue
		}
		if ev.Status == genclient.StatusFailed {
			return nil, fmt.Errorf("generation failed: %s", ev.ErrorMessage())
		}
		return ev, nil
	}
}

func (e *Engine) openStream(ctx context.Context, item domain.ProcessingItem, aspectRatio, startFramePath string) (genclient.EventStream, error) {
	req := genclient.StreamRequest{
		Prompt:      item.Prompt,
		AspectRatio: aspectRatio,
		Count:       item.Count,
	}
	if e.cfg.ContentType == domain.ModeVideos {
		req.StartFramePath = startFramePath
		return e.client.OpenVideoStream(ctx, req)
	}
	req.StartFramePath = item.ReferenceFramePath
	return e.client.OpenImageStream(ctx, req)
}

// pollForResult watches recent history for the item's outcome, backing off
// from InitialPoll toward MaxPoll by half-steps until Timeout.
func (e *Engine) pollForResult(ctx context.Context, item domain.ProcessingItem) (*genclient.Event, error) {
	start := time.Now()
	interval := e.cfg.InitialPoll

	for {
		if time.Since(start) > e.cfg.Timeout {
			return nil, fmt.Errorf("generation timed out after %s", e.cfg.Timeout)
		}
		if err := sleepContext(ctx, interval); err != nil {
			return nil, err
		}

		entry, err := e.checkHistory(ctx, item)
		if err != nil {
			e.logger.Warnw("history poll failed", "id", item.ID, "error", err)
		} else if entry != nil {
			switch entry.Status {
			case genclient.StatusCompleted:
				return entry, nil
			case genclient.StatusFailed:
				return nil, fmt.Errorf("generation failed: %s", entry.ErrorMessage())
			}
		}

		interval = interval * 3 / 2
		if interval > e.cfg.MaxPoll {
			interval = e.cfg.MaxPoll
		}
	}
}

// checkHistory matches the item against the first history page by prompt.
// Histories may truncate or decorate the prompt, so substring containment
// is checked in both directions.
func (e *Engine) checkHistory(ctx context.Context, item domain.ProcessingItem) (*genclient.Event, error) {
	entries, err := e.client.ListHistory(ctx, 1, 10)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(item.Prompt))
	for i := range entries {
		got := strings.ToLower(strings.TrimSpace(entries[i].Prompt))
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// downloadArtifacts fetches each artifact to a temp file under the download
// dir. A failed download is logged and skipped; the item stays completed
// with whatever files did land, since the URLs remain in the result.
func (e *Engine) downloadArtifacts(ctx context.Context, item domain.ProcessingItem, urls []string) []string {
	var paths []string
	for _, artifactURL := range urls {
		data, err := e.client.Download(ctx, artifactURL)
		if err != nil {
			e.metrics.downloadFinished(false, 0)
			e.logger.Warnw("artifact download failed", "id", item.ID, "url", artifactURL, "error", err)
			continue
		}
		f, err := os.CreateTemp(e.downloadDir, fmt.Sprintf("%s_*%s", item.ID, artifactExt(artifactURL, e.cfg.ContentType)))
		if err != nil {
			e.metrics.downloadFinished(false, 0)
			e.logger.Warnw("creating artifact file failed", "id", item.ID, "error", err)
			continue
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			e.metrics.downloadFinished(false, 0)
			e.logger.Warnw("writing artifact file failed", "id", item.ID, "path", f.Name(), "write_error", werr, "close_error", cerr)
			os.Remove(f.Name())
			continue
		}
		e.metrics.downloadFinished(true, len(data))
		paths = append(paths, f.Name())
	}
	return paths
}

func (e *Engine) record(job *domain.AutomationJob, itemID string, result domain.ProcessingResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[itemID] = result
	if job == nil {
		return
	}
	job.Update(itemID, result)
	if e.saver != nil {
		if err := e.saver.Save(job); err != nil {
			e.logger.Warnw("checkpoint save failed", "job_id", job.JobID, "error", err)
		}
	}
}

func (e *Engine) emit(event string, data map[string]any) {
	if e.progress != nil {
		e.progress(event, data)
	}
}

func (e *Engine) stoppedResult(item domain.ProcessingItem) domain.ProcessingResult {
	return domain.ProcessingResult{
		ID:     item.ID,
		Prompt: item.Prompt,
		Status: domain.StatusFailed,
		Error:  "stopped by user",
	}
}

func (e *Engine) failedResult(item domain.ProcessingItem, errMsg string) domain.ProcessingResult {
	return domain.ProcessingResult{
		ID:            item.ID,
		Prompt:        item.Prompt,
		Status:        domain.StatusFailed,
		Error:         errMsg,
		ErrorCategory: retry.Categorize(errMsg),
	}
}

func artifactExt(artifactURL, contentType string) string {
	if u, err := url.Parse(artifactURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	if contentType == domain.ModeVideos {
		return ".mp4"
	}
	return ".png"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
