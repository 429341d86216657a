package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusError     JobStatus = "error"
)

// JobParameters describes one request to run an external executable.
// Parameters are supplied by the caller and never mutated by the engine.
type JobParameters struct {
	ExecutablePath string            `json:"executable_path"`
	Args           []string          `json:"args,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	TimeoutSec     int               `json:"timeout_seconds"`
	Env            map[string]string `json:"env,omitempty"`
	CaptureStdout  bool              `json:"capture_stdout"`
	CaptureStderr  bool              `json:"capture_stderr"`
}

// Timeout returns the configured timeout as a duration
func (p JobParameters) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// Validate checks parameter invariants before a job is accepted
func (p JobParameters) Validate() error {
	if p.ExecutablePath == "" {
		return fmt.Errorf("executable path is required")
	}
	if p.TimeoutSec <= 0 {
		return fmt.Errorf("timeout must be greater than zero, got %d", p.TimeoutSec)
	}
	return nil
}

// ExecutionResult is produced once per attempt that ran to natural exit.
// A nonzero exit code is a valid result, not a failure the retry loop inspects.
type ExecutionResult struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}

// Success reports whether the process exited with code zero
func (r *ExecutionResult) Success() bool {
	return r.ExitCode == 0
}

// Job tracks one external-process request through its status lifecycle.
// All mutation goes through the engine; once a terminal status is reached
// the job is never modified again.
type Job struct {
	ID              string           `json:"id"`
	Params          JobParameters    `json:"params"`
	Status          JobStatus        `json:"status"`
	Attempts        int              `json:"attempts"`
	LastError       string           `json:"last_error,omitempty"`
	LastErrorKind   ErrorKind        `json:"last_error_kind,omitempty"`
	Result          *ExecutionResult `json:"result,omitempty"`
	CancelRequested bool             `json:"cancel_requested"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand out as a snapshot
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
