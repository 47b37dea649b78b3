package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jo-hoe/videogreeter/internal/common"
)

// SQLStore persists jobs in SQLite or PostgreSQL through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured backend and ensures the schema exists.
// target is a file path for sqlite and a DSN for postgres.
func Open(driver, target string) (*SQLStore, error) {
	switch driver {
	case common.DriverSQLite:
		return NewSQLiteStore(target)
	case common.DriverPostgres:
		return NewPostgresStore(target)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func NewSQLiteStore(path string) (*SQLStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return NewSQLStore(db, common.DriverSQLite)
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return NewSQLStore(db, common.DriverPostgres)
}

// NewSQLStore wraps an open handle and migrates the schema. The handle is
// closed if migration fails.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS video_jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		country TEXT NOT NULL,
		status TEXT NOT NULL,
		speech_artifact_url TEXT,
		sync_task_id TEXT,
		final_artifact_url TEXT,
		failure_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != common.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job.ID is required")
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO video_jobs (id, name, phone, country, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.Name, job.Phone, job.Country, string(job.Status), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if status.Terminal() {
		return fmt.Errorf("update status: use Complete or SaveError for %s", status)
	}
	return s.update(ctx, "update status", id, "status = ?", string(status))
}

func (s *SQLStore) SaveSpeechArtifact(ctx context.Context, id, url string) error {
	return s.update(ctx, "save speech artifact", id, "speech_artifact_url = ?, status = ?", url, string(StatusSynthesized))
}

func (s *SQLStore) SaveSyncTask(ctx context.Context, id, taskID string) error {
	return s.update(ctx, "save sync task", id, "sync_task_id = ?, status = ?", taskID, string(StatusAwaitingCompletion))
}

func (s *SQLStore) SaveFinalArtifact(ctx context.Context, id, url string) error {
	return s.update(ctx, "save final artifact", id, "final_artifact_url = ?, status = ?", url, string(StatusReady))
}

func (s *SQLStore) Complete(ctx context.Context, id string) error {
	return s.update(ctx, "complete job", id, "status = ?, completed_at = ?", string(StatusCompleted), formatTime(time.Now()))
}

func (s *SQLStore) SaveError(ctx context.Context, id, reason string) error {
	return s.update(ctx, "save error", id, "status = ?, failure_reason = ?, completed_at = ?", string(StatusFailed), reason, formatTime(time.Now()))
}

// update applies set to a non-terminal job and bumps updated_at.
func (s *SQLStore) update(ctx context.Context, op, id, set string, args ...any) error {
	query := `UPDATE video_jobs SET ` + set + `, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`
	args = append(args, formatTime(time.Now()), id, string(StatusCompleted), string(StatusFailed))
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	// Nothing matched: either the id is unknown or the job is already terminal.
	var status string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM video_jobs WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: lookup: %w", op, err)
	}
	return fmt.Errorf("%s: %w (%s)", op, ErrTerminal, status)
}

func (s *SQLStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, phone, country, status,
		speech_artifact_url, sync_task_id, final_artifact_url, failure_reason,
		created_at, updated_at, completed_at
		FROM video_jobs WHERE id = ?`), id)

	var job Job
	var status string
	var speech, task, final, reason, created, updated, completed sql.NullString

	if err := row.Scan(
		&job.ID,
		&job.Name,
		&job.Phone,
		&job.Country,
		&status,
		&speech,
		&task,
		&final,
		&reason,
		&created,
		&updated,
		&completed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = Status(status)
	job.SpeechArtifactURL = nullableString(speech)
	job.SyncTaskID = nullableString(task)
	job.FinalArtifactURL = nullableString(final)
	job.FailureReason = nullableString(reason)
	if t, ok := parseTime(created); ok {
		job.CreatedAt = t
	}
	if t, ok := parseTime(updated); ok {
		job.UpdatedAt = t
	}
	if t, ok := parseTime(completed); ok {
		job.CompletedAt = &t
	}
	return &job, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
