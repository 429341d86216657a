package models

import (
	"errors"
	"testing"
	"time"
)

func TestBackoffGrowth(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    10,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second}, // 80s capped at max
		{6, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Backoff(tt.attempt); got != tt.expected {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

// Successive backoffs must be non-decreasing and never exceed the cap
func TestBackoffMonotonic(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    20,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
		Multiplier:     1.7,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		backoff := policy.Backoff(attempt)
		if backoff < prev {
			t.Fatalf("Backoff(%d) = %v decreased from %v", attempt, backoff, prev)
		}
		if backoff > policy.MaxBackoff {
			t.Fatalf("Backoff(%d) = %v exceeds max %v", attempt, backoff, policy.MaxBackoff)
		}
		prev = backoff
	}
}

func TestIsRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		kind     ErrorKind
		expected bool
	}{
		{KindNotFound, false},
		{KindCanceled, false},
		{KindTimeout, true},
		{KindLaunchFailure, true},
		{KindUnclassified, true},
	}

	for _, tt := range tests {
		if got := policy.IsRetryable(tt.kind); got != tt.expected {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.kind, got, tt.expected)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default is valid", DefaultRetryPolicy(), false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0, Multiplier: 2}, true},
		{"multiplier below one", RetryPolicy{MaxAttempts: 3, Multiplier: 0.5}, true},
		{"negative backoff", RetryPolicy{MaxAttempts: 3, Multiplier: 2, InitialBackoff: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := NewExecError(KindTimeout, errors.New("attempt exceeded 5s"))

	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"exec error", wrapped, KindTimeout},
		{"wrapped exec error", errors.Join(errors.New("outer"), wrapped), KindTimeout},
		{"plain error", errors.New("something broke"), KindUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJobParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  JobParameters
		wantErr bool
	}{
		{"valid", JobParameters{ExecutablePath: "/bin/true", TimeoutSec: 30}, false},
		{"missing executable", JobParameters{TimeoutSec: 30}, true},
		{"zero timeout", JobParameters{ExecutablePath: "/bin/true"}, true},
		{"negative timeout", JobParameters{ExecutablePath: "/bin/true", TimeoutSec: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
