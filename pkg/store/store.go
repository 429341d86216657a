// Package store persists job state so the engine can be re-invoked after a
// restart. The engine writes a full job snapshot at every attempt boundary
// and status transition.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/runbeat/runbeat/pkg/models"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the store
	ErrJobNotFound = errors.New("job not found")
)

// Store defines the interface for job-state persistence.
// Memory, SQLite and PostgreSQL implement this interface.
type Store interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	GetAllJobs() ([]*models.Job, error)
	GetJobsInStatus(status models.JobStatus) ([]*models.Job, error)
	UpdateJob(job *models.Job) error

	Close() error
	HealthCheck() error
}

// Config holds store configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	Path string // SQLite database file
	DSN  string // PostgreSQL connection string

	// PostgreSQL connection pool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = "runbeat.db"
		}
		return NewSQLiteStore(path)
	case "postgres", "postgresql":
		return NewPostgresStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
