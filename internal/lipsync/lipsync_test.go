package lipsync

import (
	"context"
	"errors"
	"testing"

	"github.com/jo-hoe/videogreeter/internal/poller"
)

type fixedClient struct {
	status TaskStatus
	err    error
}

func (f fixedClient) Submit(ctx context.Context, videoURL, audioURL, outputName string) (string, error) {
	return "task-1", nil
}

func (f fixedClient) QueryStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	return f.status, f.err
}

func TestQuery_MapsStatus(t *testing.T) {
	q := Query(fixedClient{status: TaskStatus{State: poller.Done, OutputURL: "https://cdn/out.mp4", Status: "COMPLETED"}})
	res, err := q(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if res.State != poller.Done || res.OutputRef != "https://cdn/out.mp4" || res.Detail != "COMPLETED" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQuery_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	q := Query(fixedClient{err: boom})
	if _, err := q(context.Background(), "task-1"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
