// Package retry drives repeated launch attempts under a retry policy.
// Attempts are strictly sequential; one job never has more than one process
// in flight.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/runbeat/runbeat/pkg/cancel"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/models"
)

// Launcher runs a single attempt
type Launcher interface {
	Launch(ctx context.Context, params models.JobParameters, ctrl *cancel.Controller) (*models.ExecutionResult, error)
}

// AttemptFunc is invoked after every attempt, success or failure, before any
// backoff wait. elapsed is the wall-clock time the attempt took, measured
// around the launch so failed attempts carry a real duration too. The engine
// uses it to record attempt counts, last errors and durations at each
// attempt boundary.
type AttemptFunc func(attempt int, result *models.ExecutionResult, err error, elapsed time.Duration)

// Coordinator wraps a launcher with classification and backoff
type Coordinator struct {
	launcher Launcher
	policy   models.RetryPolicy
	log      *logging.Logger
}

// New creates a coordinator. The launcher instance is passed in explicitly
// so tests can substitute it.
func New(launcher Launcher, policy models.RetryPolicy, log *logging.Logger) *Coordinator {
	return &Coordinator{
		launcher: launcher,
		policy:   policy,
		log:      log,
	}
}

// Execute runs launch attempts until one produces a result, the failure is
// non-retryable, attempts are exhausted, or cancellation is observed.
// A result with a nonzero exit code counts as success here; only
// infrastructure failures are retried.
func (c *Coordinator) Execute(ctx context.Context, params models.JobParameters, ctrl *cancel.Controller, onAttempt AttemptFunc) (*models.ExecutionResult, error) {
	for attempt := 1; ; attempt++ {
		if ctrl.Requested() {
			return nil, models.NewExecError(models.KindCanceled,
				errors.New("cancellation requested before attempt"))
		}

		attemptStart := time.Now()
		result, err := c.launcher.Launch(ctx, params, ctrl)
		if onAttempt != nil {
			onAttempt(attempt, result, err, time.Since(attemptStart))
		}
		if err == nil {
			return result, nil
		}

		kind := models.KindOf(err)
		if !c.policy.IsRetryable(kind) {
			c.log.Info("attempt failed with non-retryable error", map[string]interface{}{
				"attempt": attempt, "kind": string(kind), "error": err.Error(),
			})
			return nil, err
		}
		if attempt >= c.policy.MaxAttempts {
			c.log.Info("attempts exhausted", map[string]interface{}{
				"attempts": attempt, "kind": string(kind), "error": err.Error(),
			})
			return nil, err
		}

		backoff := c.policy.Backoff(attempt)
		c.log.Info("attempt failed, backing off", map[string]interface{}{
			"attempt": attempt, "kind": string(kind), "backoff": backoff.String(),
		})
		if !waitBackoff(ctx, ctrl, backoff) {
			return nil, models.NewExecError(models.KindCanceled,
				errors.New("cancellation requested during backoff"))
		}
	}
}

// waitBackoff sleeps for the backoff interval. It returns false immediately
// if cancellation is requested during the wait.
func waitBackoff(ctx context.Context, ctrl *cancel.Controller, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctrl.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
