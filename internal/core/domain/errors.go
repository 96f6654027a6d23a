package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrDuplicateAssignment = errors.New("duplicate assignment")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrValidation          = errors.New("validation error")
)

// IsRetryable reports whether the caller may safely repeat the operation
// with a fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidTransitionError carries the states a caller can move to instead.
type InvalidTransitionError struct {
	AssetID   string
	From      AssetStatus
	To        AssetStatus
	ValidNext []AssetStatus
}

func (e *InvalidTransitionError) Error() string {
	next := make([]string, len(e.ValidNext))
	for i, s := range e.ValidNext {
		next[i] = string(s)
	}
	return fmt.Sprintf("invalid transition from %s to %s for asset %s (valid: [%s])",
		e.From, e.To, e.AssetID, strings.Join(next, ", "))
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func NewInvalidTransitionError(assetID string, from, to AssetStatus, validNext []AssetStatus) *InvalidTransitionError {
	return &InvalidTransitionError{AssetID: assetID, From: from, To: to, ValidNext: validNext}
}

type CapacityExceededError struct {
	PoolID   string
	Used     int
	Capacity int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("pool %s is full: %d of %d seats used", e.PoolID, e.Used, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

type DuplicateAssignmentError struct {
	PoolID   string
	MemberID string
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("member %s already holds a seat in pool %s", e.MemberID, e.PoolID)
}

func (e *DuplicateAssignmentError) Is(target error) bool { return target == ErrDuplicateAssignment }

type ConflictError struct {
	Kind     string
	ID       string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (%d attempts)", e.Kind, e.ID, e.Attempts)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
