package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/videogreeter/internal/jobs"
	"github.com/jo-hoe/videogreeter/internal/lipsync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory jobs.Store that records every persisted status.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*jobs.Job
	history map[string][]jobs.Status
}

var _ jobs.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]*jobs.Job),
		history: make(map[string][]jobs.Status),
	}
}

func (m *memStore) CreateJob(ctx context.Context, j *jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.Status == "" {
		j.Status = jobs.StatusQueued
	}
	cp := *j
	m.jobs[j.ID] = &cp
	m.history[j.ID] = []jobs.Status{j.Status}
	return nil
}

func (m *memStore) mutate(id string, to jobs.Status, fn func(*jobs.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w (%s)", jobs.ErrTerminal, j.Status)
	}
	if fn != nil {
		fn(j)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	m.history[id] = append(m.history[id], to)
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status jobs.Status) error {
	if status.Terminal() {
		return errors.New("terminal status via UpdateStatus")
	}
	return m.mutate(id, status, nil)
}

func (m *memStore) SaveSpeechArtifact(ctx context.Context, id, url string) error {
	return m.mutate(id, jobs.StatusSynthesized, func(j *jobs.Job) { j.SpeechArtifactURL = &url })
}

func (m *memStore) SaveSyncTask(ctx context.Context, id, taskID string) error {
	return m.mutate(id, jobs.StatusAwaitingCompletion, func(j *jobs.Job) { j.SyncTaskID = &taskID })
}

func (m *memStore) SaveFinalArtifact(ctx context.Context, id, url string) error {
	return m.mutate(id, jobs.StatusReady, func(j *jobs.Job) { j.FinalArtifactURL = &url })
}

func (m *memStore) Complete(ctx context.Context, id string) error {
	return m.mutate(id, jobs.StatusCompleted, nil)
}

func (m *memStore) SaveError(ctx context.Context, id, reason string) error {
	return m.mutate(id, jobs.StatusFailed, func(j *jobs.Job) { j.FailureReason = &reason })
}

func (m *memStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) statuses(id string) []jobs.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]jobs.Status(nil), m.history[id]...)
}

// scriptedLipSync replays statuses in order and repeats the last one.
type scriptedLipSync struct {
	mu          sync.Mutex
	submitErr   error
	statuses    []lipsync.TaskStatus
	errs        []error
	queries     int
	audioURLs   []string
	outputNames []string
}

func (s *scriptedLipSync) Submit(ctx context.Context, videoURL, audioURL, outputName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.audioURLs = append(s.audioURLs, audioURL)
	s.outputNames = append(s.outputNames, outputName)
	return "task-1", nil
}

func (s *scriptedLipSync) QueryStatus(ctx context.Context, taskID string) (lipsync.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.queries
	s.queries++
	if i < len(s.errs) && s.errs[i] != nil {
		return lipsync.TaskStatus{}, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

// memArtifacts is an in-memory storage.ArtifactStore.
type memArtifacts struct {
	mu          sync.Mutex
	stored      map[string][]byte
	deleted     []string
	storeErr    error
	deleteErr   error
	deletePanic bool
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{stored: make(map[string][]byte)}
}

func (a *memArtifacts) Store(ctx context.Context, key, contentType string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storeErr != nil {
		return "", a.storeErr
	}
	url := "https://artifacts.test/audio/" + key
	a.stored[url] = data
	return url, nil
}

func (a *memArtifacts) Delete(ctx context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deletePanic {
		panic("delete: nil bucket")
	}
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = append(a.deleted, url)
	delete(a.stored, url)
	return nil
}

type speechFunc func(ctx context.Context, text, voiceID string) ([]byte, error)

func (f speechFunc) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return f(ctx, text, voiceID)
}

type messengerFunc func(ctx context.Context, recipient, text, mediaURL string) error

func (f messengerFunc) Deliver(ctx context.Context, recipient, text, mediaURL string) error {
	return f(ctx, recipient, text, mediaURL)
}
