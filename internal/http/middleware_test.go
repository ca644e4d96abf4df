package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/happiestt-talha/pentutor-api/internal/application"
)

type fakeTokenValidator struct {
	principals map[string]application.Principal
	err        error
}

func (f fakeTokenValidator) ValidateToken(_ context.Context, token string) (application.Principal, error) {
	if f.err != nil {
		return application.Principal{}, f.err
	}
	principal, ok := f.principals[token]
	if !ok {
		return application.Principal{}, application.ErrInvalidToken
	}
	return principal, nil
}

func TestRequireBearer(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without valid bearer tokens", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name         string
			header       string
			validatorErr error
			expectedCode string
		}{
			{name: "missing credentials"},
			{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
			{name: "unknown token", header: "Bearer unknown", expectedCode: "TOKEN_INVALID"},
			{name: "expired token", header: "Bearer stale", validatorErr: application.ErrTokenExpired, expectedCode: "TOKEN_EXPIRED"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				handler := RequireBearer(fakeTokenValidator{err: tc.validatorErr}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatalf("next handler should not be called when authentication fails")
				}))

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				recorder := httptest.NewRecorder()
				handler.ServeHTTP(recorder, req)

				if recorder.Code != http.StatusUnauthorized {
					t.Fatalf("expected 401, got %d", recorder.Code)
				}
				var body errorResponse
				if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.ErrorCode != tc.expectedCode {
					t.Fatalf("expected error code %q, got %q", tc.expectedCode, body.ErrorCode)
				}
			})
		}
	})

	t.Run("attaches authenticated principal to request context", func(t *testing.T) {
		t.Parallel()

		want := application.Principal{UserID: "teacher-1", Role: application.RoleTeacher}
		validator := fakeTokenValidator{principals: map[string]application.Principal{"good": want}}

		var got application.Principal
		handler := RequireBearer(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "bearer  good ")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}
		if got != want {
			t.Fatalf("expected principal %+v, got %+v", want, got)
		}
	})
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Fatalf("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single completion entry, got %q", buf.String())
	}
	if entry["msg"] != "request completed" || entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/sessions" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestHandleServiceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		reason string
	}{
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"subject": "subject is required"}}, status: http.StatusUnprocessableEntity, code: "VALIDATION_FAILED"},
		{name: "conflict", err: &application.ConflictError{Resource: "schedule"}, status: http.StatusConflict, code: "CONFLICT"},
		{name: "state", err: fmt.Errorf("wrapped: %w", &application.StateError{Entity: "session", Status: "completed", Operation: "complete"}), status: http.StatusConflict, code: "INVALID_STATE"},
		{name: "access denied", err: &application.AccessDeniedError{Reason: application.DenialQuotaExhausted}, status: http.StatusForbidden, code: "ACCESS_DENIED", reason: "quota_exhausted"},
		{name: "unauthorized", err: application.ErrUnauthorized, status: http.StatusForbidden, code: "AUTH_FORBIDDEN"},
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound},
		{name: "meeting unavailable", err: fmt.Errorf("provision: %w", application.ErrMeetingUnavailable), status: http.StatusServiceUnavailable, code: "MEETING_UNAVAILABLE"},
		{name: "unexpected", err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	r := newResponder(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			r.handleServiceError(context.Background(), recorder, tc.err)

			if recorder.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, recorder.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.ErrorCode != tc.code || body.Reason != tc.reason {
				t.Fatalf("unexpected body %+v", body)
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(body.Message, "disk") {
				t.Fatalf("internal error details leaked: %q", body.Message)
			}
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	r := newResponder(nil)
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"reason":"ok","extra":1}`))
	recorder := httptest.NewRecorder()

	var dst cancelSessionRequest
	if r.decode(recorder, req, &dst) {
		t.Fatalf("expected unknown field to be rejected")
	}
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cret")
	body := []byte(`{"session_id":"s-1"}`)
	sig := SignPayload(secret, body)

	if !VerifySignature(secret, body, sig) || !VerifySignature(secret, body, "sha256="+sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature(secret, []byte(`{"session_id":"s-2"}`), sig) {
		t.Fatalf("expected tampered body to fail")
	}
	if VerifySignature([]byte("other"), body, sig) || VerifySignature(secret, body, "zz") || VerifySignature(secret, body, "") {
		t.Fatalf("expected bad signatures to fail")
	}
}
