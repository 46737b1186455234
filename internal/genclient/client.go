package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config for the generation API client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout applies to history, quota and download calls. Streaming
	// requests only bound connection setup; an open SSE body has no
	// deadline of its own (the engine's poll fallback covers a hung one).
	Timeout time.Duration
}

// Client is a thin wrapper over the remote generation API: it builds
// requests, injects auth, and hands SSE bodies to the stream parser. All
// failures surface as plain errors whose text embeds the HTTP status, which
// is what the retry classifier keys on.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	apiKey       string
	baseURL      string
	logger       *zap.SugaredLogger
}

// StreamRequest describes one generation call.
type StreamRequest struct {
	Prompt         string
	AspectRatio    string
	Count          int
	StartFramePath string
}

func New(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		logger:       logger,
	}, nil
}

// OpenImageStream starts an image generation and returns its progress
// stream.
func (c *Client) OpenImageStream(ctx context.Context, req StreamRequest) (EventStream, error) {
	if req.StartFramePath != "" {
		return c.openMultipartStream(ctx, "/veo/create-image", req, map[string]string{
			"prompt":           req.Prompt,
			"aspect_ratio":     req.AspectRatio,
			"number_of_images": strconv.Itoa(req.Count),
		}, "reference_image")
	}
	return c.openJSONStream(ctx, "/veo/create-image", map[string]any{
		"prompt":           req.Prompt,
		"aspect_ratio":     req.AspectRatio,
		"number_of_images": req.Count,
	})
}

// OpenVideoStream starts a video generation. Requests with a start frame go
// to the frames-to-video endpoint; the rest are plain text-to-video.
func (c *Client) OpenVideoStream(ctx context.Context, req StreamRequest) (EventStream, error) {
	if req.StartFramePath != "" {
		return c.openMultipartStream(ctx, "/veo/frames-to-video", req, map[string]string{
			"prompt":           req.Prompt,
			"aspect_ratio":     req.AspectRatio,
			"number_of_videos": strconv.Itoa(req.Count),
		}, "start_frame")
	}
	return c.openJSONStream(ctx, "/veo/text-to-video", map[string]any{
		"prompt":           req.Prompt,
		"aspect_ratio":     req.AspectRatio,
		"number_of_videos": req.Count,
	})
}

// History is the paged listing of recent generations.
type History struct {
	Data []Event `json:"data"`
}

// ListHistory fetches a page of recent generations, newest first. The
// engine's poll fallback matches entries against the in-flight prompt.
func (c *Client) ListHistory(ctx context.Context, page, pageSize int) ([]Event, error) {
	endpoint := fmt.Sprintf("%s/veo/histories?%s", c.baseURL, url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var history History
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode histories: %w", err)
	}
	return history.Data, nil
}

// Download fetches an artifact by URL.
func (c *Client) Download(ctx context.Context, artifactURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", artifactURL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	return data, nil
}

// Quota is the account's generation budget.
type Quota struct {
	Total     int `json:"total_quota"`
	Used      int `json:"used_quota"`
	Available int `json:"available_quota"`
}

func (c *Client) GetQuota(ctx context.Context) (Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/veo/me", nil)
	if err != nil {
		return Quota{}, fmt.Errorf("build quota request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quota{}, fmt.Errorf("get quota: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Quota{}, err
	}

	var quota Quota
	if err := json.NewDecoder(resp.Body).Decode(&quota); err != nil {
		return Quota{}, fmt.Errorf("decode quota: %w", err)
	}
	return quota, nil
}

func (c *Client) openJSONStream(ctx context.Context, path string, payload map[string]any) (EventStream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return c.doStream(req)
}

func (c *Client) openMultipartStream(ctx context.Context, path string, streamReq StreamRequest, fields map[string]string, fileField string) (EventStream, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	frame, err := os.Open(streamReq.StartFramePath)
	if err != nil {
		return nil, fmt.Errorf("open start frame: %w", err)
	}
	defer frame.Close()

	part, err := writer.CreateFormFile(fileField, filepath.Base(streamReq.StartFramePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, frame); err != nil {
		return nil, fmt.Errorf("copy start frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "text/event-stream")

	return c.doStream(req)
}

func (c *Client) doStream(req *http.Request) (EventStream, error) {
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open generation stream: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return newSSEStream(resp.Body, c.logger), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "genai-batch/1.0")
}

// checkStatus folds a non-2xx response into an error string carrying the
// status code and a body excerpt, the shape the retry classifier expects.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
