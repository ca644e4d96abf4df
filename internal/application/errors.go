package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("application: conflict")
	// ErrAccessDenied is matched by every AccessDeniedError.
	ErrAccessDenied = errors.New("application: access denied")
	// ErrInvalidState is matched by every StateError.
	ErrInvalidState = errors.New("application: invalid state")
	// ErrMeetingUnavailable is returned when a meeting room could not be provisioned.
	ErrMeetingUnavailable = errors.New("application: meeting room unavailable")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports that a uniqueness rule rejected the write.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("application: %s conflict: %s", e.Resource, e.Message)
	}
	return fmt.Sprintf("application: %s conflict", e.Resource)
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// DenialReason explains why a join was refused.
type DenialReason string

const (
	DenialNoSubscription DenialReason = "no_subscription"
	DenialExpired        DenialReason = "expired"
	DenialQuotaExhausted DenialReason = "quota_exhausted"
	DenialNotParticipant DenialReason = "not_participant"
	DenialOutsideWindow  DenialReason = "outside_window"
)

// AccessDeniedError is returned by the access gate.
type AccessDeniedError struct {
	Reason DenialReason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("application: access denied: %s", e.Reason)
}

// Is makes errors.Is(err, ErrAccessDenied) match.
func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// StateError reports an operation that is not defined for the entity's current status.
type StateError struct {
	Entity    string
	Status    string
	Operation string
}

func (e *StateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("application: cannot %s %s", e.Operation, e.Entity)
	}
	return fmt.Sprintf("application: cannot %s %s in status %s", e.Operation, e.Entity, e.Status)
}

// Is makes errors.Is(err, ErrInvalidState) match.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
