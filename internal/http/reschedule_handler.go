package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

type rescheduleService interface {
	RequestReschedule(ctx context.Context, params application.RescheduleParams) (persistence.RescheduleRequest, error)
	ApproveReschedule(ctx context.Context, params application.ResolveRescheduleParams) (application.ApproveRescheduleResult, error)
	DenyReschedule(ctx context.Context, params application.ResolveRescheduleParams) (persistence.RescheduleRequest, error)
	ListRescheduleRequests(ctx context.Context, params application.ListRescheduleParams) ([]persistence.RescheduleRequest, error)
}

type RescheduleHandler struct {
	service   rescheduleService
	responder responder
}

func NewRescheduleHandler(service rescheduleService, logger *slog.Logger) *RescheduleHandler {
	return &RescheduleHandler{service: service, responder: newResponder(logger)}
}

func (h *RescheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req rescheduleRequestBody
	if !h.responder.decode(w, r, &req) {
		return
	}
	proposedAt, err := time.Parse(time.RFC3339, req.ProposedAt)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"proposed_at": "must be an RFC 3339 timestamp"},
		})
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.RequestReschedule(r.Context(), application.RescheduleParams{
		Principal:  principal,
		SessionID:  sessionID,
		ProposedAt: proposedAt,
		Reason:     req.Reason,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRescheduleDTO(request))
}

func (h *RescheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	status := persistence.RescheduleStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", persistence.ReschedulePending, persistence.RescheduleApproved, persistence.RescheduleDenied:
	default:
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"status": "must be one of: pending approved denied"},
		})
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requests, err := h.service.ListRescheduleRequests(r.Context(), application.ListRescheduleParams{
		Principal: principal,
		Status:    status,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]rescheduleDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRescheduleDTO(req))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRescheduleResponse{Requests: out})
}

func (h *RescheduleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	params, ok := h.resolveParams(w, r)
	if !ok {
		return
	}

	result, err := h.service.ApproveReschedule(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, approveRescheduleResponse{
		Request: toRescheduleDTO(result.Request),
		Session: toSessionDTO(result.Session),
	})
}

func (h *RescheduleHandler) Deny(w http.ResponseWriter, r *http.Request) {
	params, ok := h.resolveParams(w, r)
	if !ok {
		return
	}

	request, err := h.service.DenyReschedule(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRescheduleDTO(request))
}

func (h *RescheduleHandler) resolveParams(w http.ResponseWriter, r *http.Request) (application.ResolveRescheduleParams, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.ResolveRescheduleParams{}, false
	}

	requestID := strings.TrimSpace(r.PathValue("id"))
	if requestID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRequestID)
		return application.ResolveRescheduleParams{}, false
	}

	var req resolveRescheduleBody
	if !h.responder.decode(w, r, &req) {
		return application.ResolveRescheduleParams{}, false
	}

	principal, _ := PrincipalFromContext(r.Context())
	return application.ResolveRescheduleParams{Principal: principal, RequestID: requestID, Note: req.Note}, true
}

type rescheduleRequestBody struct {
	ProposedAt string `json:"proposed_at" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=1000"`
}

type resolveRescheduleBody struct {
	Note string `json:"note" validate:"max=1000"`
}

type listRescheduleResponse struct {
	Requests []rescheduleDTO `json:"requests"`
}

type approveRescheduleResponse struct {
	Request rescheduleDTO `json:"request"`
	Session sessionDTO    `json:"session"`
}
