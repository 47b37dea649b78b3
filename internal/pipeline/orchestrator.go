// Package pipeline drives a video job through speech synthesis, lip-sync,
// and delivery, persisting every status change.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"text/template"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
	"github.com/jo-hoe/videogreeter/internal/intake"
	"github.com/jo-hoe/videogreeter/internal/jobs"
	"github.com/jo-hoe/videogreeter/internal/lipsync"
	"github.com/jo-hoe/videogreeter/internal/messaging"
	"github.com/jo-hoe/videogreeter/internal/poller"
	"github.com/jo-hoe/videogreeter/internal/speech"
	"github.com/jo-hoe/videogreeter/internal/storage"
	"github.com/jo-hoe/videogreeter/internal/util"
)

const saveErrorTimeout = 10 * time.Second

// Deps are the collaborators an Orchestrator calls.
type Deps struct {
	Log       *slog.Logger
	Store     jobs.Store
	Speech    speech.Synthesizer
	LipSync   lipsync.Client
	Messenger messaging.Messenger
	Artifacts storage.ArtifactStore
}

// Settings tune the generated content and the completion wait.
type Settings struct {
	TemplateVideoURL string
	VoiceID          string
	ScriptTemplate   string // empty uses DefaultScriptTemplate
	MessageTemplate  string // empty uses DefaultMessageTemplate
	Poll             poller.Options
}

// Orchestrator implements jobs.Processor.
type Orchestrator struct {
	deps     Deps
	settings Settings
	script   *template.Template
	message  *template.Template
	now      func() time.Time
}

var _ jobs.Processor = (*Orchestrator)(nil)

func New(deps Deps, settings Settings) (*Orchestrator, error) {
	if deps.Store == nil || deps.Speech == nil || deps.LipSync == nil || deps.Messenger == nil || deps.Artifacts == nil {
		return nil, errors.New("pipeline: all dependencies are required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	script, err := parseTemplate("script", settings.ScriptTemplate, DefaultScriptTemplate)
	if err != nil {
		return nil, err
	}
	message, err := parseTemplate("message", settings.MessageTemplate, DefaultMessageTemplate)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		deps:     deps,
		settings: settings,
		script:   script,
		message:  message,
		now:      time.Now,
	}, nil
}

// Process drives one job to completed or failed. The first stage error is
// persisted as the failure reason and returned. A panic in a collaborator
// fails the job at the stage it was in.
func (o *Orchestrator) Process(ctx context.Context, item jobs.WorkItem) (err error) {
	r := &run{
		Orchestrator: o,
		log:          o.deps.Log.With("job_id", item.Job.ID),
		job:          item.Job,
		status:       item.Job.Status,
	}
	if r.status == "" {
		r.status = jobs.StatusQueued
	}
	if r.status.Terminal() {
		return fmt.Errorf("process job: %w (%s)", jobs.ErrTerminal, r.status)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = r.recovered(ctx, rec)
		}
	}()
	if err = r.execute(ctx); err != nil {
		r.fail(ctx, err)
		return err
	}
	return nil
}

// recovered turns a panic into a stage failure. A panic after the job
// completed, during cleanup, is only logged.
func (r *run) recovered(ctx context.Context, rec any) error {
	r.log.Error("panic while processing job", "panic", rec, "status", r.status, "stack", string(debug.Stack()))
	if r.status.Terminal() {
		return nil
	}
	err := stageError(stageOf(r.status), nil, fmt.Errorf("panic: %v", rec))
	r.fail(ctx, err)
	return err
}

// stageOf names the stage a job is in while it holds status s.
func stageOf(s jobs.Status) Stage {
	switch s {
	case jobs.StatusSynthesized, jobs.StatusSubmitting:
		return StageSubmit
	case jobs.StatusAwaitingCompletion:
		return StageAwait
	case jobs.StatusReady, jobs.StatusDelivering:
		return StageDeliver
	default:
		return StageSynthesize
	}
}

// run holds the state of one Process call.
type run struct {
	*Orchestrator
	log    *slog.Logger
	job    jobs.Job
	status jobs.Status
}

func (r *run) execute(ctx context.Context) error {
	store := r.deps.Store
	id := r.job.ID

	// Synthesize.
	if err := r.advance(jobs.StatusSynthesizing, func() error {
		return store.UpdateStatus(ctx, id, jobs.StatusSynthesizing)
	}); err != nil {
		return stageError(StageSynthesize, nil, err)
	}
	speechURL, err := r.synthesize(ctx)
	if err != nil {
		return stageError(StageSynthesize, ErrSynthesisFailed, err)
	}
	if err := r.advance(jobs.StatusSynthesized, func() error {
		return store.SaveSpeechArtifact(ctx, id, speechURL)
	}); err != nil {
		return stageError(StageSynthesize, nil, err)
	}

	// Submit.
	if err := r.advance(jobs.StatusSubmitting, func() error {
		return store.UpdateStatus(ctx, id, jobs.StatusSubmitting)
	}); err != nil {
		return stageError(StageSubmit, nil, err)
	}
	taskID, err := r.deps.LipSync.Submit(ctx, r.settings.TemplateVideoURL, speechURL, r.outputName())
	if err != nil {
		return stageError(StageSubmit, ErrSubmissionFailed, err)
	}
	if err := r.advance(jobs.StatusAwaitingCompletion, func() error {
		return store.SaveSyncTask(ctx, id, taskID)
	}); err != nil {
		return stageError(StageSubmit, nil, err)
	}

	// Await completion.
	videoURL, err := poller.Await(ctx, taskID, lipsync.Query(r.deps.LipSync), r.pollOptions(taskID))
	if err != nil {
		return stageError(StageAwait, awaitKind(err), err)
	}
	if err := r.advance(jobs.StatusReady, func() error {
		return store.SaveFinalArtifact(ctx, id, videoURL)
	}); err != nil {
		return stageError(StageAwait, nil, err)
	}

	// Deliver.
	if err := r.advance(jobs.StatusDelivering, func() error {
		return store.UpdateStatus(ctx, id, jobs.StatusDelivering)
	}); err != nil {
		return stageError(StageDeliver, nil, err)
	}
	if err := r.deliver(ctx, videoURL); err != nil {
		return stageError(StageDeliver, ErrDeliveryFailed, err)
	}
	if err := r.advance(jobs.StatusCompleted, func() error {
		return store.Complete(ctx, id)
	}); err != nil {
		return stageError(StageDeliver, nil, err)
	}

	r.cleanup(ctx, speechURL)
	return nil
}

// advance persists a forward transition and records it locally.
func (r *run) advance(to jobs.Status, persist func() error) error {
	if !jobs.CanTransition(r.status, to) {
		return fmt.Errorf("illegal transition %s -> %s", r.status, to)
	}
	if err := persist(); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	r.log.Info("job status changed", "from", r.status, "to", to)
	r.status = to
	return nil
}

func (r *run) synthesize(ctx context.Context) (string, error) {
	text, err := render(r.script, textData{Name: r.job.Name, Country: r.job.Country})
	if err != nil {
		return "", err
	}
	audio, err := r.deps.Speech.Synthesize(ctx, text, r.settings.VoiceID)
	if err != nil {
		return "", err
	}
	url, err := r.deps.Artifacts.Store(ctx, r.artifactKey(), common.ContentTypeMP3, audio)
	if err != nil {
		return "", fmt.Errorf("store speech artifact: %w", err)
	}
	r.log.Debug("speech artifact stored", "url", url, "bytes", len(audio))
	return url, nil
}

// artifactKey is {jobID}-{unixMillis}-{uuid}.mp3.
func (r *run) artifactKey() string {
	return fmt.Sprintf("%s-%d-%s%s", r.job.ID, r.now().UnixMilli(), util.NewID(), common.ExtMP3)
}

// outputName is the provider-side file name of the rendered video,
// personalized-video-{jobID}-{unixMillis}.
func (r *run) outputName() string {
	return fmt.Sprintf("personalized-video-%s-%d", r.job.ID, r.now().UnixMilli())
}

func (r *run) pollOptions(taskID string) poller.Options {
	opts := r.settings.Poll
	if opts.MaxAttempts == 0 && opts.Interval == 0 {
		opts = poller.DefaultOptions()
	}
	opts.OnAttempt = func(attempt int, res poller.Result, err error) {
		if err != nil {
			r.log.Warn("lip-sync status query failed", "task_id", taskID, "attempt", attempt, "err", err)
			return
		}
		r.log.Debug("lip-sync status", "task_id", taskID, "attempt", attempt, "state", res.State, "detail", res.Detail)
	}
	return opts
}

func (r *run) deliver(ctx context.Context, videoURL string) error {
	text, err := render(r.message, textData{Name: r.job.Name, Country: r.job.Country, URL: videoURL})
	if err != nil {
		return err
	}
	return r.deps.Messenger.Deliver(ctx, intake.NormalizePhone(r.job.Phone), text, videoURL)
}

// cleanup removes the intermediate speech artifact. Errors are only logged.
func (r *run) cleanup(ctx context.Context, speechURL string) {
	if err := r.deps.Artifacts.Delete(ctx, speechURL); err != nil {
		r.log.Warn("speech artifact cleanup failed", "url", speechURL, "err", err)
	}
}

// fail records err as the job's failure reason. A job that is already
// terminal is left untouched.
func (r *run) fail(ctx context.Context, err error) {
	if errors.Is(err, jobs.ErrTerminal) {
		r.log.Warn("job already terminal, not recording failure", "err", err)
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveErrorTimeout)
	defer cancel()
	if saveErr := r.deps.Store.SaveError(saveCtx, r.job.ID, err.Error()); saveErr != nil {
		r.log.Error("persist failure reason", "err", saveErr, "reason", err)
		return
	}
	r.log.Info("job status changed", "from", r.status, "to", jobs.StatusFailed)
	r.status = jobs.StatusFailed
}
