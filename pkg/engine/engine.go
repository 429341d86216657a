// Package engine owns job lifecycle: it accepts submissions, drives launch
// attempts through the retry coordinator, enforces status transitions and
// persists a snapshot of every job at each attempt boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runbeat/runbeat/pkg/cancel"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/retry"
	"github.com/runbeat/runbeat/pkg/store"
)

var (
	// ErrJobNotFinished is returned by Result for jobs that have not
	// reached a terminal status yet
	ErrJobNotFinished = errors.New("job has not finished")
)

// Recorder receives engine events for metrics export. It is satisfied by
// metrics.Exporter; tests use a no-op.
type Recorder interface {
	RecordSubmission()
	RecordAttempt(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission()                   {}
func (nopRecorder) RecordAttempt(string, time.Duration) {}

// jobHandle tracks the cancellation controller of an in-flight job.
// Runner completion is tracked through e.wg.
type jobHandle struct {
	ctrl *cancel.Controller
}

// Engine is the job execution engine
type Engine struct {
	store    store.Store
	launcher retry.Launcher
	policy   models.RetryPolicy
	log      *logging.Logger
	recorder Recorder

	mu      sync.Mutex
	handles map[string]*jobHandle
	wg      sync.WaitGroup
}

// New creates an engine. Pass nil for recorder to disable metrics.
func New(s store.Store, launcher retry.Launcher, policy models.RetryPolicy, log *logging.Logger, recorder Recorder) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Engine{
		store:    s,
		launcher: launcher,
		policy:   policy,
		log:      log,
		recorder: recorder,
		handles:  make(map[string]*jobHandle),
	}, nil
}

// Submit validates parameters, persists a pending job and starts its runner.
// It returns the job id immediately; execution proceeds asynchronously.
func (e *Engine) Submit(params models.JobParameters) (string, error) {
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("invalid job parameters: %w", err)
	}

	job := &models.Job{
		ID:        uuid.NewString(),
		Params:    params,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	handle := &jobHandle{ctrl: cancel.NewController()}

	e.mu.Lock()
	if err := e.store.CreateJob(job); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("failed to persist job: %w", err)
	}
	e.handles[job.ID] = handle
	e.mu.Unlock()

	e.recorder.RecordSubmission()
	e.log.Info("job submitted", map[string]interface{}{
		"job_id":     job.ID,
		"executable": params.ExecutablePath,
	})

	e.wg.Add(1)
	go e.run(job, handle)

	return job.ID, nil
}

// Status returns the current status of a job
func (e *Engine) Status(id string) (models.JobStatus, error) {
	job, err := e.store.GetJob(id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Result returns the execution result of a completed job. Jobs that are
// still in flight return ErrJobNotFinished; jobs that ended in Canceled or
// Error return the failure as an error.
func (e *Engine) Result(id string) (*models.ExecutionResult, error) {
	job, err := e.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusCompleted:
		return job.Result, nil
	case models.JobStatusCanceled, models.JobStatusError:
		return nil, fmt.Errorf("job %s ended in status %s: %s", id, job.Status, job.LastError)
	default:
		return nil, ErrJobNotFinished
	}
}

// Attempts returns how many launch attempts the job has consumed so far
func (e *Engine) Attempts(id string) (int, error) {
	job, err := e.store.GetJob(id)
	if err != nil {
		return 0, err
	}
	return job.Attempts, nil
}

// GetJob returns a snapshot of a job
func (e *Engine) GetJob(id string) (*models.Job, error) {
	return e.store.GetJob(id)
}

// ListJobs returns snapshots of all known jobs
func (e *Engine) ListJobs() ([]*models.Job, error) {
	return e.store.GetAllJobs()
}

// RequestCancellation flags a job for cancellation. The request is
// idempotent: repeated calls and calls against finished jobs succeed
// without effect. The job transitions to Canceled asynchronously once its
// runner observes the flag.
func (e *Engine) RequestCancellation(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.store.GetJob(id)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(job.Status) {
		return nil
	}

	if handle, ok := e.handles[id]; ok {
		handle.ctrl.Request()
	}

	job.CancelRequested = true
	if err := e.store.UpdateJob(job); err != nil {
		return err
	}

	e.log.Info("cancellation requested", map[string]interface{}{"job_id": id})
	return nil
}

// RecoverInterrupted marks jobs left in a non-terminal status by a previous
// process as Error. The outcome of their last attempt is unknown, so they
// are not silently re-run. Returns the number of jobs marked.
func (e *Engine) RecoverInterrupted() (int, error) {
	recovered := 0
	for _, status := range []models.JobStatus{models.JobStatusRunning, models.JobStatusPending} {
		jobs, err := e.store.GetJobsInStatus(status)
		if err != nil {
			return recovered, err
		}
		for _, job := range jobs {
			now := time.Now().UTC()
			job.Status = models.JobStatusError
			job.LastError = "interrupted: engine restarted while job was in flight"
			job.LastErrorKind = models.KindUnclassified
			job.CompletedAt = &now
			if err := e.store.UpdateJob(job); err != nil {
				return recovered, err
			}
			recovered++
			e.log.Warn("marked interrupted job as error", map[string]interface{}{
				"job_id": job.ID, "previous_status": string(status),
			})
		}
	}
	return recovered, nil
}

// Shutdown requests cancellation of all in-flight jobs and waits for their
// runners to finish or the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, handle := range e.handles {
		handle.ctrl.Request()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// run executes one job to a terminal status. It is the only writer of the
// job's snapshot after submission, except for the CancelRequested flag.
func (e *Engine) run(job *models.Job, handle *jobHandle) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.handles, job.ID)
		e.mu.Unlock()
	}()

	log := e.log.WithField("job_id", job.ID)

	now := time.Now().UTC()
	job.StartedAt = &now
	if err := e.transition(job, models.JobStatusRunning); err != nil {
		log.Error("failed to start job", map[string]interface{}{"error": err.Error()})
		return
	}

	result, err := retry.New(e.launcher, e.policy, e.log).Execute(
		context.Background(), job.Params, handle.ctrl,
		func(attempt int, result *models.ExecutionResult, attemptErr error, elapsed time.Duration) {
			e.recordAttempt(job, attempt, result, attemptErr, elapsed)
		})

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	if err != nil {
		job.LastError = err.Error()
		job.LastErrorKind = models.KindOf(err)

		target := models.JobStatusError
		if job.LastErrorKind == models.KindCanceled {
			target = models.JobStatusCanceled
		}
		if terr := e.transition(job, target); terr != nil {
			log.Error("failed to finalize job", map[string]interface{}{"error": terr.Error()})
		}
		log.Info("job finished", map[string]interface{}{
			"status": string(job.Status), "attempts": job.Attempts, "error": err.Error(),
		})
		return
	}

	// A result is terminal success regardless of exit code
	job.Result = result
	if terr := e.transition(job, models.JobStatusCompleted); terr != nil {
		log.Error("failed to finalize job", map[string]interface{}{"error": terr.Error()})
		return
	}
	log.Info("job finished", map[string]interface{}{
		"status": string(job.Status), "attempts": job.Attempts, "exit_code": result.ExitCode,
	})
}

// recordAttempt persists attempt count and last error at an attempt boundary
func (e *Engine) recordAttempt(job *models.Job, attempt int, result *models.ExecutionResult, err error, elapsed time.Duration) {
	if err != nil {
		job.LastError = err.Error()
		job.LastErrorKind = models.KindOf(err)
		e.recorder.RecordAttempt(string(job.LastErrorKind), elapsed)
	} else {
		e.recorder.RecordAttempt("success", result.Duration)
	}
	job.Attempts = attempt

	e.mu.Lock()
	defer e.mu.Unlock()
	job.CancelRequested = e.cancelRequested(job.ID)
	if uerr := e.store.UpdateJob(job); uerr != nil {
		e.log.Error("failed to persist attempt", map[string]interface{}{
			"job_id": job.ID, "error": uerr.Error(),
		})
	}
}

// transition validates and persists a status change
func (e *Engine) transition(job *models.Job, to models.JobStatus) error {
	if err := models.ValidateTransition(job.Status, to); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job.Status = to
	job.CancelRequested = e.cancelRequested(job.ID)
	return e.store.UpdateJob(job)
}

// cancelRequested reports the live cancellation flag. Callers must hold e.mu.
func (e *Engine) cancelRequested(id string) bool {
	if handle, ok := e.handles[id]; ok {
		return handle.ctrl.Requested()
	}
	return false
}
