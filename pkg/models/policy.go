package models

import (
	"fmt"
	"time"
)

// RetryPolicy defines retry behavior for failed attempts
type RetryPolicy struct {
	MaxAttempts    int           // Maximum number of launch attempts (>= 1)
	InitialBackoff time.Duration // Backoff before the second attempt
	MaxBackoff     time.Duration // Cap on the computed backoff
	Multiplier     float64       // Exponential backoff multiplier (>= 1)
	NonRetryable   []ErrorKind   // Error kinds that fail the job immediately
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		NonRetryable:   []ErrorKind{KindNotFound, KindCanceled},
	}
}

// Validate checks policy invariants
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", p.Multiplier)
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return fmt.Errorf("backoff intervals must not be negative")
	}
	return nil
}

// Backoff computes the delay after the given 1-based attempt:
// min(MaxBackoff, InitialBackoff * Multiplier^(attempt-1))
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
		if time.Duration(backoff) >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	d := time.Duration(backoff)
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// IsRetryable reports whether a failure of the given kind may be retried
func (p RetryPolicy) IsRetryable(kind ErrorKind) bool {
	for _, k := range p.NonRetryable {
		if k == kind {
			return false
		}
	}
	return true
}
