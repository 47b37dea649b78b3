package syncso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/lipsync"
	"github.com/jo-hoe/videogreeter/internal/poller"
)

var _ lipsync.Client = (*Client)(nil)

const (
	headerAPIKey      = "x-api-key"
	headerContentType = "Content-Type"

	endpointGenerate = "v2/generate"

	defaultTimeout    = 30 * time.Second
	errorSnippetLimit = 400
)

// Provider statuses.
const (
	statusPending    = "PENDING"
	statusProcessing = "PROCESSING"
	statusCompleted  = "COMPLETED"
	statusFailed     = "FAILED"
	statusRejected   = "REJECTED"
)

// Client implements lipsync.Client against the sync.so generation API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	syncMode   string
}

// New creates a sync.so client.
func New(cfg config.SyncSoSettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		syncMode:   cfg.SyncMode,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// Submit posts a generation with the video and audio inputs.
func (c *Client) Submit(ctx context.Context, videoURL, audioURL, outputName string) (string, error) {
	if strings.TrimSpace(videoURL) == "" || strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("video and audio urls are required")
	}
	payload := generateRequest{
		Model: c.model,
		Input: []mediaInput{
			{Type: "video", URL: videoURL},
			{Type: "audio", URL: audioURL},
		},
		Options:        generateOptions{SyncMode: c.syncMode},
		OutputFileName: outputName,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	u, err := url.JoinPath(c.baseURL, endpointGenerate)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	var out generation
	if err := c.do(ctx, http.MethodPost, u, bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("sync.so response missing id")
	}
	return out.ID, nil
}

// QueryStatus fetches /v2/generate/{id} and maps the provider status.
func (c *Client) QueryStatus(ctx context.Context, taskID string) (lipsync.TaskStatus, error) {
	u, err := url.JoinPath(c.baseURL, endpointGenerate, taskID)
	if err != nil {
		return lipsync.TaskStatus{}, fmt.Errorf("join url: %w", err)
	}
	var out generation
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return lipsync.TaskStatus{}, err
	}
	return mapStatus(out), nil
}

func mapStatus(g generation) lipsync.TaskStatus {
	st := lipsync.TaskStatus{Status: g.Status}
	switch strings.ToUpper(g.Status) {
	case statusCompleted:
		st.State = poller.Done
		st.OutputURL = g.OutputURL
	case statusFailed, statusRejected:
		st.State = poller.Failed
		if g.Error != "" {
			st.Status = g.Status + ": " + g.Error
		}
	default:
		// PENDING, PROCESSING and anything unrecognised keep polling.
		st.State = poller.Pending
	}
	return st
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set(headerContentType, common.ContentTypeJSON)
	}
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sync.so status %d: %s", resp.StatusCode, truncate(string(raw), errorSnippetLimit))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type generateRequest struct {
	Model          string          `json:"model"`
	Input          []mediaInput    `json:"input"`
	Options        generateOptions `json:"options"`
	OutputFileName string          `json:"outputFileName,omitempty"`
}

type mediaInput struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type generateOptions struct {
	SyncMode string `json:"sync_mode,omitempty"`
}

type generation struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	OutputURL string `json:"outputUrl"`
	Error     string `json:"error"`
}
