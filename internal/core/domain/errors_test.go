package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NewNotFoundError("asset", "A1"), ErrNotFound},
		{"invalid transition", NewInvalidTransitionError("A1", StatusRetired, StatusStaged, nil), ErrInvalidTransition},
		{"capacity", &CapacityExceededError{PoolID: "L1", Used: 2, Capacity: 2}, ErrCapacityExceeded},
		{"duplicate", &DuplicateAssignmentError{PoolID: "L1", MemberID: "u"}, ErrDuplicateAssignment},
		{"conflict", &ConflictError{Kind: "license", ID: "L1", Attempts: 3}, ErrConcurrencyConflict},
		{"validation", NewValidationError("status", "unknown"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&ConflictError{Kind: "asset", ID: "A1", Attempts: 1}) {
		t.Error("conflict should be retryable")
	}
	if IsRetryable(&CapacityExceededError{PoolID: "L1"}) {
		t.Error("capacity exceeded must not be retryable")
	}
	if IsRetryable(NewInvalidTransitionError("A1", StatusRetired, StatusStaged, nil)) {
		t.Error("invalid transition must not be retryable")
	}
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := NewInvalidTransitionError("A1", StatusRepair, StatusStaged, []AssetStatus{StatusInService, StatusRetired})
	want := "invalid transition from repair to staged for asset A1 (valid: [in_service, retired])"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
