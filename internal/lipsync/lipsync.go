package lipsync

import (
	"context"

	"github.com/jo-hoe/videogreeter/internal/poller"
)

// TaskStatus is a provider task status mapped onto the poller states.
type TaskStatus struct {
	State     poller.State
	OutputURL string // set when State is poller.Done
	Status    string // raw provider status, kept for logs and failure detail
}

// Client submits lip-sync generations and reports their progress.
type Client interface {
	// Submit starts lip-syncing the template video to the audio and returns the provider task id.
	// outputName names the rendered file on the provider side.
	Submit(ctx context.Context, videoURL, audioURL, outputName string) (string, error)
	// QueryStatus returns the current status of a submitted task.
	QueryStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

// Query adapts a Client to the poller's query function.
func Query(c Client) poller.QueryFunc {
	return func(ctx context.Context, taskID string) (poller.Result, error) {
		st, err := c.QueryStatus(ctx, taskID)
		if err != nil {
			return poller.Result{}, err
		}
		return poller.Result{State: st.State, OutputRef: st.OutputURL, Detail: st.Status}, nil
	}
}
