package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/happiestt-talha/pentutor-api/internal/application"
)

type tokenIssuer interface {
	IssueToken(principal application.Principal) (string, error)
}

// AuthHandler lets administrators mint bearer tokens for other principals.
// Account management lives outside this service.
type AuthHandler struct {
	service   tokenIssuer
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service tokenIssuer, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, ok := PrincipalFromContext(r.Context())
	if !ok || !caller.IsAdmin() {
		h.log(r.Context(), "IssueToken", "error_kind", "forbidden").WarnContext(r.Context(), "non-administrator attempted token issuance")
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}

	var req issueTokenRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	subject := application.Principal{
		UserID: strings.TrimSpace(req.UserID),
		Role:   application.Role(req.Role),
	}
	logger := h.log(r.Context(), "IssueToken", "subject_id", subject.UserID, "subject_role", req.Role)

	token, err := h.service.IssueToken(subject)
	if err != nil {
		if errors.Is(err, application.ErrInvalidToken) {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"user_id": "a user id and a known role are required"},
			})
			return
		}
		logger.ErrorContext(r.Context(), "failed to issue token", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "token issued")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, issueTokenResponse{
		Token:  token,
		UserID: subject.UserID,
		Role:   string(subject.Role),
	})
}

type issueTokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=admin teacher student"`
}

type issueTokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
