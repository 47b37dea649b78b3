package jobs

import (
	"context"
	"errors"
	"time"
)

// Status represents the lifecycle stage of a video generation job.
type Status string

const (
	StatusQueued             Status = "queued"
	StatusSynthesizing       Status = "synthesizing"
	StatusSynthesized        Status = "synthesized"
	StatusSubmitting         Status = "submitting"
	StatusAwaitingCompletion Status = "awaiting_completion"
	StatusReady              Status = "ready"
	StatusDelivering         Status = "delivering"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// progression is the fixed forward order; failed sits outside it.
var progression = []Status{
	StatusQueued,
	StatusSynthesizing,
	StatusSynthesized,
	StatusSubmitting,
	StatusAwaitingCompletion,
	StatusReady,
	StatusDelivering,
	StatusCompleted,
}

func (s Status) String() string {
	return string(s)
}

// Rank returns the position of s in the forward progression, or -1 for
// failed and unknown values.
func (s Status) Rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusFailed || s.Rank() >= 0
}

// Terminal reports whether no further transitions can follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Forward moves may skip statuses; failed is reachable from any non-terminal status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return to.Rank() > from.Rank()
}

var (
	// ErrNotFound is returned when no job exists for an id.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when an update targets a job that already completed or failed.
	ErrTerminal = errors.New("job already in terminal status")
)

// Job describes a single personalized video request.
type Job struct {
	ID                string     // UUIDv4
	Name              string     // recipient name used in the script and message
	Phone             string     // recipient handle as submitted
	Country           string     // recipient country used in the script
	Status            Status     // current status
	SpeechArtifactURL *string    // set once speech is synthesized and stored
	SyncTaskID        *string    // lip-sync provider task id
	FinalArtifactURL  *string    // lip-synced video
	FailureReason     *string    // set only when failed
	CreatedAt         time.Time  // creation time
	UpdatedAt         time.Time  // last persisted transition
	CompletedAt       *time.Time // when finished (success or failure)
}

// Store defines persistence for Jobs and their lifecycle. Update methods
// never modify a job that is already terminal and never clear artifacts.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	SaveSpeechArtifact(ctx context.Context, id, url string) error
	SaveSyncTask(ctx context.Context, id, taskID string) error
	SaveFinalArtifact(ctx context.Context, id, url string) error
	Complete(ctx context.Context, id string) error
	SaveError(ctx context.Context, id, reason string) error
	GetJob(ctx context.Context, id string) (*Job, error)
	Close() error
}
