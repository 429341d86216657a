package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an attempt failure for retry decisions
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"      // Executable or working directory missing
	KindLaunchFailure ErrorKind = "launch_failure" // OS rejected process creation
	KindTimeout       ErrorKind = "timeout"        // Attempt exceeded its timeout
	KindCanceled      ErrorKind = "canceled"       // Cancellation observed
	KindUnclassified  ErrorKind = "unclassified"   // Anything else; retryable until attempts exhaust
)

// ExecError is a classified attempt failure
type ExecError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewExecError wraps err with a classification kind
func NewExecError(kind ErrorKind, err error) *ExecError {
	return &ExecError{Kind: kind, Err: err}
}

// KindOf extracts the classification of err.
// Unclassified failures are treated conservatively as retryable.
func KindOf(err error) ErrorKind {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return KindUnclassified
}
