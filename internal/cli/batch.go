package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/engine"
	"github.com/Hunselvm/genai/internal/id"
	"github.com/Hunselvm/genai/internal/jobstore"
	"github.com/Hunselvm/genai/internal/notify"
	"github.com/Hunselvm/genai/internal/retry"
)

type batchFlags struct {
	itemsPath   string
	aspect      string
	count       int
	startFrame  string
	resumeID    string
	metricsAddr string
}

func (f *batchFlags) register(cmd *cobra.Command, videoAspect bool) {
	cmd.Flags().StringVar(&f.itemsPath, "items", "", "JSON file with the items to process")
	if videoAspect {
		cmd.Flags().StringVar(&f.aspect, "aspect", domain.VideoAspectLandscape, "video aspect ratio")
	} else {
		cmd.Flags().StringVar(&f.aspect, "aspect", domain.ImageAspectLandscape, "image aspect ratio")
	}
	cmd.Flags().IntVar(&f.count, "count", 1, "artifacts per item when the item does not set one")
	cmd.Flags().StringVar(&f.resumeID, "resume", "", "resume this job instead of starting a new one")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run")
}

func (a *app) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run generation batches",
	}
	cmd.AddCommand(a.batchImagesCmd(), a.batchVideosCmd(), a.batchBrollCmd())
	return cmd
}

func (a *app) batchImagesCmd() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Generate images for a batch of prompts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd, domain.ModeImages, flags)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) batchVideosCmd() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "Generate videos for a batch of prompts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd, domain.ModeVideos, flags)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&flags.startFrame, "start-frame", "", "seed frame image applied to every item without its own")
	return cmd
}

func (a *app) batchBrollCmd() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "broll",
		Short: "Generate a still for each prompt, then animate it into a video",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd, flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, mode string, flags batchFlags) error {
	ctx := cmd.Context()

	store, closeStore, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := a.client()
	if err != nil {
		return err
	}

	job, items, err := a.prepareJob(store, mode, flags, map[string]string{"aspect_ratio": flags.aspect})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "job %s has nothing left to process\n", job.JobID)
		return nil
	}

	var engineCfg engine.Config
	if mode == domain.ModeVideos {
		engineCfg = engine.VideosConfig()
	} else {
		engineCfg = engine.ImagesConfig()
	}

	eng, runCtx, cancel, err := a.newEngine(ctx, cmd, client, engineCfg, store, flags.metricsAddr)
	if err != nil {
		return err
	}
	defer cancel()

	job.Status = domain.JobStatusRunning
	if err := store.Save(job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	if mode == domain.ModeVideos {
		_, err = eng.GenerateVideosBatch(runCtx, items, flags.aspect, flags.startFrame, job)
	} else {
		_, err = eng.GenerateImagesBatch(runCtx, items, flags.aspect, job)
	}
	if err != nil && err != context.Canceled {
		a.logger.Warnw("batch ended early", "job_id", job.JobID, "error", err)
	}

	if job.RemainingCount() == 0 {
		job.Status = domain.JobStatusCompleted
	} else {
		job.Status = domain.JobStatusPaused
	}
	if err := store.Save(job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	a.notifyJob(ctx, job)

	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: %d completed, %d failed, %d remaining\n",
		job.JobID, job.Status, job.CompletedCount, job.FailedCount, job.RemainingCount())
	return nil
}

// notifyJob fires the completion webhook if one is configured. Failures
// are logged only; the job record is already saved.
func (a *app) notifyJob(ctx context.Context, job *domain.AutomationJob) {
	if a.cfg.Notify.WebhookURL == "" {
		return
	}
	event := notify.EventJobCompleted
	if job.Status == domain.JobStatusPaused {
		event = notify.EventJobPaused
	}
	hook := notify.NewWebhook(notify.Config{SigningSecret: a.cfg.Notify.SigningSecret})
	err := hook.Send(ctx, a.cfg.Notify.WebhookURL, event, notify.JobPayload{
		JobID:     job.JobID,
		Mode:      job.Mode,
		Status:    job.Status,
		Completed: job.CompletedCount,
		Failed:    job.FailedCount,
		Total:     job.TotalCount(),
	})
	if err != nil {
		a.logger.Warnw("webhook notification failed", "job_id", job.JobID, "error", err)
	}
}

func (a *app) runPipeline(cmd *cobra.Command, flags batchFlags) error {
	ctx := cmd.Context()

	store, closeStore, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := a.client()
	if err != nil {
		return err
	}

	// The pipeline resumes from the job's full item list; cached stage
	// results are skipped per stage, not per item.
	var job *domain.AutomationJob
	if flags.resumeID != "" {
		job, err = store.Load(flags.resumeID)
		if err != nil {
			return err
		}
		if job.Mode != domain.ModeBRollPipeline {
			return fmt.Errorf("job %s is a %s job, not a pipeline", job.JobID, job.Mode)
		}
	} else {
		items, loadErr := loadItems(flags.itemsPath, flags.count)
		if loadErr != nil {
			return loadErr
		}
		job, err = store.Create(domain.ModeBRollPipeline, items, map[string]string{"aspect_ratio": flags.aspect})
		if err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter, err := a.limiter(engine.ImagesConfig().RequestsPerMinute, "pipeline")
	if err != nil {
		return err
	}
	metrics := engine.NewMetrics()
	a.serveMetrics(flags.metricsAddr, metrics)

	opts := engine.Options{
		Logger:      a.logger,
		Progress:    progressPrinter(cmd),
		Limiter:     limiter,
		Retry:       retry.New(a.logger),
		Saver:       store,
		Metrics:     metrics,
		DownloadDir: a.cfg.Jobs.DownloadDir,
	}
	pipe := engine.NewPipeline(client, opts)
	watchSignals(runCtx, cancel, pipe, a)

	results, err := pipe.Run(runCtx, job.Items, flags.aspect, job)
	if err != nil {
		return err
	}

	a.notifyJob(runCtx, job)

	videos := 0
	for _, r := range results {
		if r.Video != nil && r.Video.Completed() {
			videos++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: %d/%d videos delivered\n",
		job.JobID, job.Status, videos, len(job.Items))
	return nil
}

// newEngine wires an engine with the shared collaborators and installs
// signal handling: the first interrupt requests a graceful stop, a second
// one cancels outright.
func (a *app) newEngine(ctx context.Context, cmd *cobra.Command, client engine.Generator, engineCfg engine.Config, store jobstore.Store, metricsAddr string) (*engine.Engine, context.Context, context.CancelFunc, error) {
	limiter, err := a.limiter(engineCfg.RequestsPerMinute, engineCfg.ContentType)
	if err != nil {
		return nil, nil, nil, err
	}

	metrics := engine.NewMetrics()
	a.serveMetrics(metricsAddr, metrics)

	eng := engine.New(client, engineCfg, engine.Options{
		Logger:      a.logger,
		Progress:    progressPrinter(cmd),
		Limiter:     limiter,
		Retry:       retry.New(a.logger),
		Saver:       store,
		Metrics:     metrics,
		DownloadDir: a.cfg.Jobs.DownloadDir,
	})

	runCtx, cancel := context.WithCancel(ctx)
	watchSignals(runCtx, cancel, eng, a)
	return eng, runCtx, cancel, nil
}

// stopper is anything that can wind down gracefully: an engine or a whole
// pipeline.
type stopper interface {
	RequestStop()
}

func watchSignals(ctx context.Context, cancel context.CancelFunc, target stopper, a *app) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			a.logger.Infow("stop requested, letting in-flight items finish")
			if target != nil {
				target.RequestStop()
			}
		}
		select {
		case <-ctx.Done():
		case <-sigCh:
			a.logger.Warnw("second interrupt, aborting")
			cancel()
		}
	}()
}

func (a *app) serveMetrics(addr string, metrics *engine.Metrics) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Warnw("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
}

func (a *app) prepareJob(store jobstore.Store, mode string, flags batchFlags, settings map[string]string) (*domain.AutomationJob, []domain.ProcessingItem, error) {
	if flags.resumeID != "" {
		job, err := store.Load(flags.resumeID)
		if err != nil {
			return nil, nil, err
		}
		if job.Mode != mode {
			return nil, nil, fmt.Errorf("job %s is a %s job, not %s", job.JobID, job.Mode, mode)
		}
		return job, job.PendingItems(), nil
	}

	if flags.itemsPath == "" {
		return nil, nil, fmt.Errorf("either --items or --resume is required")
	}
	items, err := loadItems(flags.itemsPath, flags.count)
	if err != nil {
		return nil, nil, err
	}
	job, err := store.Create(mode, items, settings)
	if err != nil {
		return nil, nil, err
	}
	return job, items, nil
}

// loadItems reads the batch input file: a JSON array of items. Missing ids
// are filled in, and anything failing prompt validation aborts the run
// before remote work starts.
func loadItems(path string, defaultCount int) ([]domain.ProcessingItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}
	var raw []domain.ProcessingItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse items file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("items file %s is empty", path)
	}
	for i := range raw {
		if raw[i].ID == "" {
			raw[i].ID = id.New()
		}
		if raw[i].Count == 0 {
			raw[i].Count = defaultCount
		}
	}
	items, problems := domain.ValidateItems(raw)
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid items: %s", strings.Join(problems, "; "))
	}
	return items, nil
}

// progressPrinter renders engine events as one line each.
func progressPrinter(cmd *cobra.Command) engine.ProgressFunc {
	out := cmd.OutOrStdout()
	return func(event string, data map[string]any) {
		switch event {
		case engine.EventBatchStarted:
			fmt.Fprintf(out, "starting %v batch of %v items\n", data["content_type"], data["total"])
		case engine.EventItemStarted:
			fmt.Fprintf(out, "  [%v] started\n", data["id"])
		case engine.EventItemRetrying:
			fmt.Fprintf(out, "  [%v] retry %v in %.0fs: %v\n", data["id"], data["retry"], data["delay_seconds"], data["error"])
		case engine.EventItemCompleted:
			fmt.Fprintf(out, "  [%v] completed\n", data["id"])
		case engine.EventItemFailed:
			fmt.Fprintf(out, "  [%v] failed (%v): %v\n", data["id"], data["error_category"], data["error"])
		case engine.EventStepStarted:
			fmt.Fprintf(out, "step %v: %v\n", data["step"], data["name"])
		case engine.EventBatchCompleted:
			fmt.Fprintf(out, "batch done: %v completed, %v failed\n", data["completed"], data["failed"])
		}
	}
}
