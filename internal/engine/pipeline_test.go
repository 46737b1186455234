package engine

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/genclient"
)

func seedPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func completedStream(urls ...string) genclient.EventStream {
	return &fakeStream{events: []genclient.Event{
		{Status: genclient.StatusCompleted, FileURLs: urls},
	}}
}

func TestPipelineChainsImagesIntoVideos(t *testing.T) {
	seed := seedPNG(t)
	gen := &fakeGenerator{
		openImage: func(req genclient.StreamRequest) (genclient.EventStream, error) {
			require.Equal(t, domain.ImageAspectPortrait, req.AspectRatio)
			if strings.Contains(req.Prompt, "broken") {
				return &fakeStream{events: []genclient.Event{
					{Status: genclient.StatusFailed, Error: "content policy violation"},
				}}, nil
			}
			return completedStream("http://files/" + req.Prompt + ".png"), nil
		},
		openVideo: func(req genclient.StreamRequest) (genclient.EventStream, error) {
			return completedStream("http://files/" + req.Prompt + ".mp4"), nil
		},
		download: func(artifactURL string) ([]byte, error) {
			if strings.HasSuffix(artifactURL, ".png") {
				return seed, nil
			}
			return []byte("video"), nil
		},
	}

	rec := newProgressRecorder()
	job := &domain.AutomationJob{
		JobID:   "p1",
		Mode:    domain.ModeBRollPipeline,
		Results: map[string]domain.ProcessingResult{},
	}

	// The failing item uses the default strategy, so give it a handler
	// that never actually sleeps.
	pipe := NewPipeline(gen, testOptions(t, rec.hook, &countingSaver{}))
	out, err := pipe.Run(context.Background(), []domain.ProcessingItem{
		{ID: "a", Prompt: "a calm ocean", Count: 1},
		{ID: "b", Prompt: "a broken scene", Count: 1},
		{ID: "c", Prompt: "a forest road", Count: 1},
	}, domain.VideoAspectPortrait, job)
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.Equal(t, domain.StatusCompleted, out["a"].Image.Status)
	require.NotNil(t, out["a"].Video)
	require.Equal(t, domain.StatusCompleted, out["a"].Video.Status)

	require.Equal(t, domain.StatusFailed, out["b"].Image.Status)
	require.Nil(t, out["b"].Video, "failed image stage must not seed a video")

	require.NotNil(t, out["c"].Video)
	require.Equal(t, domain.StatusCompleted, out["c"].Video.Status)

	require.Len(t, gen.videoReqs, 2)
	for _, req := range gen.videoReqs {
		require.NotEmpty(t, req.StartFramePath)
		_, statErr := os.Stat(req.StartFramePath)
		require.NoError(t, statErr, "start frame must exist on disk")
		require.Equal(t, domain.VideoAspectPortrait, req.AspectRatio)
	}

	require.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Equal(t, domain.StepVideos, job.CurrentStep)
	require.Contains(t, job.Results, "a_img")
	require.Contains(t, job.Results, "a_vid")
	require.Contains(t, job.Results, "b_img")
	require.NotContains(t, job.Results, "b_vid")
	require.Equal(t, 2, rec.count(EventStepStarted))
	require.Equal(t, 2, rec.count(EventBatchStarted))
}

func TestPipelineSkipsCachedStagesOnResume(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "a_img.png")
	require.NoError(t, os.WriteFile(seedPath, seedPNG(t), 0o644))
	videoPath := filepath.Join(dir, "a_vid.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	gen := &fakeGenerator{
		openImage: func(genclient.StreamRequest) (genclient.EventStream, error) {
			t.Error("cached image stage must not regenerate")
			return nil, nil
		},
		openVideo: func(genclient.StreamRequest) (genclient.EventStream, error) {
			t.Error("cached video stage must not regenerate")
			return nil, nil
		},
	}

	job := &domain.AutomationJob{
		JobID:  "p2",
		Mode:   domain.ModeBRollPipeline,
		Status: domain.JobStatusRunning,
		Results: map[string]domain.ProcessingResult{
			"a_img": {ID: "a_img", Prompt: "a calm ocean", Status: domain.StatusCompleted, FilePaths: []string{seedPath}},
			"a_vid": {ID: "a_vid", Prompt: "a calm ocean", Status: domain.StatusCompleted, FilePaths: []string{videoPath}},
		},
	}

	pipe := NewPipeline(gen, testOptions(t, nil, &countingSaver{}))
	out, err := pipe.Run(context.Background(), []domain.ProcessingItem{
		{ID: "a", Prompt: "a calm ocean", Count: 1},
	}, domain.VideoAspectLandscape, job)
	require.NoError(t, err)

	require.Equal(t, []string{seedPath}, out["a"].Image.FilePaths)
	require.Equal(t, []string{videoPath}, out["a"].Video.FilePaths)
}

func TestPipelineRegeneratesWhenCachedSeedFrameIsGone(t *testing.T) {
	seed := seedPNG(t)
	regenerated := false
	gen := &fakeGenerator{
		openImage: func(req genclient.StreamRequest) (genclient.EventStream, error) {
			regenerated = true
			return completedStream("http://files/a.png"), nil
		},
		openVideo: func(req genclient.StreamRequest) (genclient.EventStream, error) {
			return completedStream("http://files/a.mp4"), nil
		},
		download: func(artifactURL string) ([]byte, error) {
			if strings.HasSuffix(artifactURL, ".png") {
				return seed, nil
			}
			return []byte("video"), nil
		},
	}

	job := &domain.AutomationJob{
		JobID:  "p3",
		Mode:   domain.ModeBRollPipeline,
		Status: domain.JobStatusRunning,
		Results: map[string]domain.ProcessingResult{
			"a_img": {ID: "a_img", Prompt: "a calm ocean", Status: domain.StatusCompleted, FilePaths: []string{"/nonexistent/a_img.png"}},
		},
	}

	pipe := NewPipeline(gen, testOptions(t, nil, &countingSaver{}))
	out, err := pipe.Run(context.Background(), []domain.ProcessingItem{
		{ID: "a", Prompt: "a calm ocean", Count: 1},
	}, domain.VideoAspectLandscape, job)
	require.NoError(t, err)

	require.True(t, regenerated)
	require.Equal(t, domain.StatusCompleted, out["a"].Image.Status)
	require.NotNil(t, out["a"].Video)
}

func TestPipelineStopBeforeRunShortCircuitsEverything(t *testing.T) {
	gen := &fakeGenerator{
		openImage: func(genclient.StreamRequest) (genclient.EventStream, error) {
			t.Error("no stream should be opened after a stop request")
			return nil, nil
		},
	}

	pipe := NewPipeline(gen, testOptions(t, nil, &countingSaver{}))
	pipe.RequestStop()

	out, err := pipe.Run(context.Background(), []domain.ProcessingItem{
		{ID: "a", Prompt: "a calm ocean", Count: 1},
	}, domain.VideoAspectLandscape, nil)
	require.NoError(t, err)

	require.Equal(t, domain.StatusFailed, out["a"].Image.Status)
	require.Equal(t, "stopped by user", out["a"].Image.Error)
	require.Nil(t, out["a"].Video)
	require.Empty(t, gen.videoReqs)
}

func TestPipelineStopDuringImageStageSkipsVideoStage(t *testing.T) {
	seed := seedPNG(t)
	var pipe *Pipeline
	gen := &fakeGenerator{
		openImage: func(req genclient.StreamRequest) (genclient.EventStream, error) {
			// Operator interrupts while the only image is in flight: the
			// image finishes, the video stage must not start.
			pipe.RequestStop()
			return completedStream("http://files/a.png"), nil
		},
		download: func(string) ([]byte, error) { return seed, nil },
	}

	pipe = NewPipeline(gen, testOptions(t, nil, &countingSaver{}))
	out, err := pipe.Run(context.Background(), []domain.ProcessingItem{
		{ID: "a", Prompt: "a calm ocean", Count: 1},
	}, domain.VideoAspectLandscape, nil)
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, out["a"].Image.Status)
	require.NotNil(t, out["a"].Video)
	require.Equal(t, "stopped by user", out["a"].Video.Error)
	require.Empty(t, gen.videoReqs)
}

func TestValidateSeedFrameRejectsJunk(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))

	require.Error(t, validateSeedFrame(junk))
	require.Error(t, validateSeedFrame(filepath.Join(dir, "missing.png")))

	good := filepath.Join(dir, "good.png")
	require.NoError(t, os.WriteFile(good, seedPNG(t), 0o644))
	require.NoError(t, validateSeedFrame(good))
}
