package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/runbeat/runbeat/pkg/models"
)

// PostgresStore implements Store using PostgreSQL, for deployments where
// several operators share one job history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config Config) (*PostgresStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		params JSONB NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		last_error_kind TEXT NOT NULL DEFAULT '',
		result JSONB,
		cancel_requested BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateJob adds a new job to the store
func (s *PostgresStore) CreateJob(job *models.Job) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, job.ID, string(params), job.Status, job.Attempts, job.LastError,
		string(job.LastErrorKind), result, job.CancelRequested, job.CreatedAt,
		job.StartedAt, job.CompletedAt)

	return err
}

// GetJob retrieves a job by ID
func (s *PostgresStore) GetJob(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT `+jobColumns+`
		FROM jobs WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetAllJobs returns all jobs, newest first
func (s *PostgresStore) GetAllJobs() ([]*models.Job, error) {
	return s.queryJobs(`
		SELECT ` + jobColumns + `
		FROM jobs ORDER BY created_at DESC
	`)
}

// GetJobsInStatus returns all jobs in the given status
func (s *PostgresStore) GetJobsInStatus(status models.JobStatus) ([]*models.Job, error) {
	return s.queryJobs(`
		SELECT `+jobColumns+`
		FROM jobs WHERE status = $1 ORDER BY created_at DESC
	`, status)
}

func (s *PostgresStore) queryJobs(query string, args ...interface{}) ([]*models.Job, error) {
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
func (s *PostgresStore) UpdateJob(job *models.Job) error {
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
		SET params = $1, status = $2, attempts = $3, last_error = $4, last_error_kind = $5,
		    result = $6, cancel_requested = $7, started_at = $8, completed_at = $9
		WHERE id = $10
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database connection
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}

var _ Store = (*PostgresStore)(nil)
