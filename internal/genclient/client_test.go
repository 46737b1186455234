package genclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestOpenVideoStreamTextEndpoint(t *testing.T) {
	var gotPath, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"status\": \"completed\", \"file_url\": \"http://x/v.mp4\"}\n\n")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	stream, err := client.OpenVideoStream(context.Background(), StreamRequest{
		Prompt:      "slow pan across a foggy harbor at dawn",
		AspectRatio: "VIDEO_ASPECT_RATIO_LANDSCAPE",
		Count:       1,
	})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Close()

	if gotPath != "/veo/text-to-video" {
		t.Fatalf("expected text-to-video endpoint, got %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}

	event, err := stream.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !event.Terminal() || event.FileURL != "http://x/v.mp4" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestOpenStreamSurfacesStatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "overloaded")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.OpenImageStream(context.Background(), StreamRequest{Prompt: "p", Count: 1})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestListHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/veo/histories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("page_size") != "10" {
			t.Errorf("unexpected page_size %s", r.URL.Query().Get("page_size"))
		}
		fmt.Fprint(w, `{"data": [{"prompt": "foggy harbor", "status": "completed", "file_url": "http://x/h.mp4"}]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	entries, err := client.ListHistory(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 || entries[0].Prompt != "foggy harbor" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "artifact-bytes")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	data, err := client.Download(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "artifact-bytes" {
		t.Fatalf("unexpected body: %q", data)
	}
}

func TestGetQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/veo/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"total_quota": 100, "used_quota": 40, "available_quota": 60}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	quota, err := client.GetQuota(context.Background())
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if quota.Available != 60 || quota.Total != 100 {
		t.Fatalf("unexpected quota: %+v", quota)
	}
}
