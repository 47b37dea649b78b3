package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/lipsync"
	"github.com/jo-hoe/videogreeter/internal/poller"
	"github.com/jo-hoe/videogreeter/internal/util"
)

var _ lipsync.Client = (*Client)(nil)

// Client is an in-memory lip-sync provider. Each task reports pending for
// CompleteAfter queries and then completes with OutputURL.
type Client struct {
	completeAfter int
	outputURL     string

	mu      sync.Mutex
	queries map[string]int
}

func New(cfg config.MockLipSyncSettings) *Client {
	c := &Client{
		outputURL: cfg.OutputURL,
		queries:   make(map[string]int),
	}
	if cfg.CompleteAfter != nil {
		c.completeAfter = *cfg.CompleteAfter
	}
	return c
}

func (c *Client) Submit(ctx context.Context, videoURL, audioURL, outputName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if videoURL == "" || audioURL == "" {
		return "", fmt.Errorf("video and audio urls are required")
	}
	id := "mock-" + util.NewID()
	c.mu.Lock()
	c.queries[id] = 0
	c.mu.Unlock()
	return id, nil
}

func (c *Client) QueryStatus(ctx context.Context, taskID string) (lipsync.TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return lipsync.TaskStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.queries[taskID]
	if !ok {
		return lipsync.TaskStatus{}, fmt.Errorf("unknown task %q", taskID)
	}
	n++
	c.queries[taskID] = n
	if n <= c.completeAfter {
		return lipsync.TaskStatus{State: poller.Pending, Status: "PROCESSING"}, nil
	}
	out := c.outputURL
	if out == "" {
		out = "https://example.invalid/lipsync/" + taskID + ".mp4"
	}
	return lipsync.TaskStatus{State: poller.Done, OutputURL: out, Status: "COMPLETED"}, nil
}
