package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("expected nil validation error to be empty")
	}

	err := &ValidationError{}
	if err.HasErrors() {
		t.Fatalf("expected no field errors before add")
	}

	err.add("days", "at least one day is required")
	err.add("days", "second message is ignored")
	err.merge(&ValidationError{FieldErrors: map[string]string{
		"days":    "merged message is ignored",
		"subject": "subject is required",
	}})
	err.merge(nil)

	if !err.HasErrors() || len(err.FieldErrors) != 2 {
		t.Fatalf("expected two field errors, got %v", err.FieldErrors)
	}
	if got := err.FieldErrors["days"]; got != "at least one day is required" {
		t.Fatalf("expected first message to win, got %q", got)
	}
	if err.Error() != "validation failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "conflict",
			err:      &ConflictError{Resource: "session", Message: "slot already taken"},
			sentinel: ErrConflict,
			message:  "application: session conflict: slot already taken",
		},
		{
			name:     "access denied",
			err:      &AccessDeniedError{Reason: DenialQuotaExhausted},
			sentinel: ErrAccessDenied,
			message:  "application: access denied: quota_exhausted",
		},
		{
			name:     "state",
			err:      &StateError{Entity: "reschedule request", Status: "approved", Operation: "approve"},
			sentinel: ErrInvalidState,
			message:  "application: cannot approve reschedule request in status approved",
		},
		{
			name:     "state without status",
			err:      &StateError{Entity: "subscription", Operation: "consume"},
			sentinel: ErrInvalidState,
			message:  "application: cannot consume subscription",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Fatalf("expected %v to match its sentinel", tc.err)
			}
			if errors.Is(wrapped, ErrNotFound) {
				t.Fatalf("expected %v not to match ErrNotFound", tc.err)
			}
			if tc.err.Error() != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, tc.err.Error())
			}
		})
	}

	var denied *AccessDeniedError
	if !errors.As(fmt.Errorf("join: %w", &AccessDeniedError{Reason: DenialExpired}), &denied) || denied.Reason != DenialExpired {
		t.Fatalf("expected errors.As to recover the denial reason")
	}
}
