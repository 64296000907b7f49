package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/ytscribe/internal/common"
)

var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when workers and handlers write concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		step TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		text_path TEXT,
		json_path TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(job *Job) error {
	if err := prepareJob(job); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, url, status, step, progress, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.URL, string(job.Status), job.Step, job.Progress, formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkRunning(id string, startedAt time.Time) error {
	return s.exec("mark running",
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		string(StatusRunning), formatTime(startedAt), id)
}

// UpdateProgress never moves progress backwards.
func (s *SQLiteStore) UpdateProgress(id, step string, progress int) error {
	return s.exec("update progress",
		`UPDATE jobs SET step = ?, progress = MAX(progress, ?) WHERE id = ?`,
		step, progress, id)
}

func (s *SQLiteStore) SaveResult(id string, textPath, jsonPath string, completedAt time.Time) error {
	return s.exec("save result", `UPDATE jobs
		SET text_path = ?, json_path = ?, status = ?, progress = 100, error_message = NULL, completed_at = ?
		WHERE id = ?`,
		textPath, jsonPath, string(StatusCompleted), formatTime(completedAt), id)
}

func (s *SQLiteStore) SaveError(id string, errMsg string, completedAt time.Time) error {
	return s.exec("save error", `UPDATE jobs
		SET error_message = ?, status = ?, completed_at = ?
		WHERE id = ?`,
		errMsg, string(StatusFailed), formatTime(completedAt), id)
}

func (s *SQLiteStore) exec(op, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

const selectColumns = `SELECT id, url, status, step, progress, error_message, text_path, json_path,
	created_at, started_at, completed_at FROM jobs`

func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (s *SQLiteStore) ListJobs(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var step, errMsg, textPath, jsonPath, created, started, completed sql.NullString
	var status string

	if err := row.Scan(
		&job.ID,
		&job.URL,
		&status,
		&step,
		&job.Progress,
		&errMsg,
		&textPath,
		&jsonPath,
		&created,
		&started,
		&completed,
	); err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.Step = step.String
	job.ErrorMessage = nullableString(errMsg)
	job.TextPath = nullableString(textPath)
	job.JSONPath = nullableString(jsonPath)
	if t := parseTime(created); t != nil {
		job.CreatedAt = *t
	}
	job.StartedAt = parseTime(started)
	job.CompletedAt = parseTime(completed)
	return &job, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func prepareJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job.ID is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
