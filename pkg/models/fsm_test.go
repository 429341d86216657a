package models

import (
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		// Valid transitions
		{"Pending to Running", JobStatusPending, JobStatusRunning, false},
		{"Pending to Canceled", JobStatusPending, JobStatusCanceled, false},
		{"Pending to Error", JobStatusPending, JobStatusError, false},
		{"Running to Completed", JobStatusRunning, JobStatusCompleted, false},
		{"Running to Canceled", JobStatusRunning, JobStatusCanceled, false},
		{"Running to Error", JobStatusRunning, JobStatusError, false},

		// Invalid transitions
		{"Pending to Completed", JobStatusPending, JobStatusCompleted, true},
		{"Running to Pending", JobStatusRunning, JobStatusPending, true},
		{"Completed to Running", JobStatusCompleted, JobStatusRunning, true},
		{"Completed to Canceled", JobStatusCompleted, JobStatusCanceled, true},
		{"Canceled to Running", JobStatusCanceled, JobStatusRunning, true},
		{"Error to Running", JobStatusError, JobStatusRunning, true},
		{"Error to Completed", JobStatusError, JobStatusCompleted, true},
		{"Unknown source", JobStatus("bogus"), JobStatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected bool
	}{
		{"Completed is terminal", JobStatusCompleted, true},
		{"Canceled is terminal", JobStatusCanceled, true},
		{"Error is terminal", JobStatusError, true},
		{"Pending is not terminal", JobStatusPending, false},
		{"Running is not terminal", JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsTerminalStatus(tt.status)
			if result != tt.expected {
				t.Errorf("IsTerminalStatus(%v) = %v, want %v", tt.status, result, tt.expected)
			}
		})
	}
}
