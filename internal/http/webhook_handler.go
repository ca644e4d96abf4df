package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Meeting-Signature"

var errBadSignature = errors.New("webhook signature does not match")

type participantRecorder interface {
	RecordParticipantEvent(ctx context.Context, event application.ParticipantEvent) error
}

// WebhookHandler receives presence callbacks from the meeting service.
type WebhookHandler struct {
	service   participantRecorder
	secret    []byte
	responder responder
	logger    *slog.Logger
}

func NewWebhookHandler(service participantRecorder, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:   service,
		secret:    []byte(secret),
		responder: newResponder(logger),
		logger:    defaultLogger(logger),
	}
}

func (h *WebhookHandler) Meeting(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil || len(h.secret) == 0 {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		handlerLogger(r.Context(), h.logger, "WebhookHandler", "Meeting", "error_kind", "bad_signature").
			WarnContext(r.Context(), "rejected unsigned meeting callback")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errBadSignature)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	var req meetingEventRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	event := application.ParticipantEvent{
		SessionID: req.SessionID,
		Side:      persistence.Side(req.Side),
		Kind:      application.ParticipantEventKind(req.Event),
	}
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"at": "must be an RFC 3339 timestamp"},
			})
			return
		}
		event.At = at
	}

	if err := h.service.RecordParticipantEvent(r.Context(), event); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// SignPayload returns the signature header value for body.
func SignPayload(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header value, with or without a "sha256=" prefix,
// against body in constant time.
func VerifySignature(secret, body []byte, header string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	got, err := hex.DecodeString(header)
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(SignPayload(secret, body))
	return hmac.Equal(got, want)
}

type meetingEventRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Side      string `json:"side" validate:"required,oneof=student teacher"`
	Event     string `json:"event" validate:"required,oneof=join leave"`
	At        string `json:"at"`
	RoomRef   string `json:"room_ref"`
}
