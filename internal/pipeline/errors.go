package pipeline

import (
	"errors"

	"github.com/jo-hoe/videogreeter/internal/poller"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageSynthesize Stage = "synthesize"
	StageSubmit     Stage = "submit"
	StageAwait      Stage = "await completion"
	StageDeliver    Stage = "deliver"
)

// Failure kinds. A StageError matches exactly one of them with errors.Is,
// except for cancellation and persistence errors which carry no kind.
var (
	ErrSynthesisFailed  = errors.New("speech synthesis failed")
	ErrSubmissionFailed = errors.New("lip-sync submission failed")
	ErrTaskFailed       = poller.ErrTaskFailed
	ErrTaskTimeout      = poller.ErrTaskTimeout
	ErrDeliveryFailed   = errors.New("delivery failed")
)

// StageError is the first error that stopped a job.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Kind == nil || errors.Is(e.Err, e.Kind) {
		return string(e.Stage) + ": " + e.Err.Error()
	}
	return string(e.Stage) + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func stageError(stage Stage, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// awaitKind classifies a poller error.
func awaitKind(err error) error {
	switch {
	case errors.Is(err, poller.ErrTaskFailed):
		return ErrTaskFailed
	case errors.Is(err, poller.ErrTaskTimeout):
		return ErrTaskTimeout
	default:
		return nil
	}
}
