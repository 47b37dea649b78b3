package jobs

import (
	"context"
	"time"
)

// View is the client-facing snapshot of a job returned by status reads.
type View struct {
	ID                string    `json:"id"`
	Status            Status    `json:"status"`
	SpeechArtifactURL *string   `json:"speechArtifactUrl,omitempty"`
	FinalArtifactURL  *string   `json:"finalArtifactUrl,omitempty"`
	FailureReason     *string   `json:"failureReason,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewView projects a job onto its client-facing fields. Recipient inputs are not exposed.
func NewView(job *Job) View {
	return View{
		ID:                job.ID,
		Status:            job.Status,
		SpeechArtifactURL: job.SpeechArtifactURL,
		FinalArtifactURL:  job.FinalArtifactURL,
		FailureReason:     job.FailureReason,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

// Lookup returns the current view of a job, or ErrNotFound.
func Lookup(ctx context.Context, store Store, id string) (View, error) {
	job, err := store.GetJob(ctx, id)
	if err != nil {
		return View{}, err
	}
	if job == nil {
		return View{}, ErrNotFound
	}
	return NewView(job), nil
}
