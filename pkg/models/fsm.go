package models

import (
	"fmt"
)

// validTransitions maps from-status to allowed to-statuses
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusRunning:  true, // Pending → Running (submit/start)
		JobStatusCanceled: true, // Pending → Canceled (cancellation requested before first attempt)
		JobStatusError:    true, // Pending → Error (crash recovery on a never-started job)
	},
	JobStatusRunning: {
		JobStatusCompleted: true, // Running → Completed (attempt produced a result)
		JobStatusCanceled:  true, // Running → Canceled (cancellation observed pre- or mid-attempt)
		JobStatusError:     true, // Running → Error (retries exhausted or non-retryable failure)
	},
	// Terminal statuses (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusCanceled:  {},
	JobStatusError:     {},
}

// ValidateTransition checks if a status transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalStatus returns true if the status admits no further transitions
func IsTerminalStatus(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusCanceled || status == JobStatusError
}
