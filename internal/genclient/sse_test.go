package genclient

import (
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSSEStreamParsesDataLines(t *testing.T) {
	raw := strings.Join([]string{
		`event: progress`,
		`data: {"status": "processing", "process_percentage": 40}`,
		``,
		`data: not-json at all`,
		``,
		`data: {"status": "completed", "file_urls": ["http://x/a.png", "http://x/a_2.png"]}`,
		``,
	}, "\n")

	stream := newSSEStream(io.NopCloser(strings.NewReader(raw)), zap.NewNop().Sugar())
	defer stream.Close()

	first, err := stream.Next()
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if first.Status != StatusProcessing || first.ProgressPercent != 40 {
		t.Fatalf("unexpected first event: %+v", first)
	}

	// The malformed line is skipped, not fatal.
	second, err := stream.Next()
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if second.Status != StatusCompleted {
		t.Fatalf("expected terminal event, got %+v", second)
	}
	urls := second.ArtifactURLs()
	if len(urls) != 2 || urls[0] != "http://x/a.png" {
		t.Fatalf("unexpected urls: %v", urls)
	}

	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at stream end, got %v", err)
	}
}

func TestEventArtifactURLFallback(t *testing.T) {
	event := Event{Status: StatusCompleted, FileURL: "http://x/only.mp4"}
	urls := event.ArtifactURLs()
	if len(urls) != 1 || urls[0] != "http://x/only.mp4" {
		t.Fatalf("expected single-url fallback, got %v", urls)
	}

	if (&Event{Status: StatusCompleted}).ArtifactURLs() != nil {
		t.Fatal("expected nil urls for event without artifacts")
	}
}

func TestEventErrorMessage(t *testing.T) {
	withMsg := Event{Status: StatusFailed, Error: "content policy violation"}
	if got := withMsg.ErrorMessage(); got != "content policy violation" {
		t.Fatalf("unexpected error message: %s", got)
	}
	bare := Event{Status: StatusFailed}
	if got := bare.ErrorMessage(); got != "generation failed" {
		t.Fatalf("expected fallback message, got %s", got)
	}
}
