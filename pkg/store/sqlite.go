package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/runbeat/runbeat/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite connection string with parameters for concurrent access
	// - _journal_mode=WAL: Enable Write-Ahead Logging for better concurrency
	// - _busy_timeout=10000: Wait up to 10 seconds when database is locked
	// - _synchronous=NORMAL: Balance between safety and performance
	// - _txlock=immediate: Acquire write lock at transaction start to reduce conflicts
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		params TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_error_kind TEXT,
		result TEXT,
		cancel_requested BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

const jobColumns = `id, params, status, attempts, last_error, last_error_kind,
	       result, cancel_requested, created_at, started_at, completed_at`

// CreateJob adds a new job to the store
func (s *SQLiteStore) CreateJob(job *models.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	var result sql.NullString
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs
		(id, params, status, attempts, last_error, last_error_kind,
		 result, cancel_requested, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(params), job.Status, job.Attempts, job.LastError,
		string(job.LastErrorKind), result, job.CancelRequested, job.CreatedAt,
		job.StartedAt, job.CompletedAt)

	return err
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT `+jobColumns+`
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetAllJobs returns all jobs, newest first
func (s *SQLiteStore) GetAllJobs() ([]*models.Job, error) {
	return s.queryJobs(`
		SELECT ` + jobColumns + `
		FROM jobs ORDER BY created_at DESC
	`)
}

// GetJobsInStatus returns all jobs in the given status
func (s *SQLiteStore) GetJobsInStatus(status models.JobStatus) ([]*models.Job, error) {
	return s.queryJobs(`
		SELECT `+jobColumns+`
		FROM jobs WHERE status = ? ORDER BY created_at DESC
	`, status)
}

func (s *SQLiteStore) queryJobs(query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob replaces the stored row for a job
func (s *SQLiteStore) UpdateJob(job *models.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	var result sql.NullString
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE jobs
		SET params = ?, status = ?, attempts = ?, last_error = ?, last_error_kind = ?,
		    result = ?, cancel_requested = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(params), job.Status, job.Attempts, job.LastError, string(job.LastErrorKind),
		result, job.CancelRequested, job.StartedAt, job.CompletedAt, job.ID)

	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// scanner abstracts *sql.Row and *sql.Rows for scanJob
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one job row. The column order must match jobColumns.
func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var paramsJSON string
	var lastErrorKind string
	var resultJSON sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &paramsJSON, &job.Status, &job.Attempts, &job.LastError,
		&lastErrorKind, &resultJSON, &job.CancelRequested, &job.CreatedAt,
		&startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	job.LastErrorKind = models.ErrorKind(lastErrorKind)

	if resultJSON.Valid && resultJSON.String != "" && resultJSON.String != "null" {
		var result models.ExecutionResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		job.Result = &result
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
