package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

type subscriptionService interface {
	PurchaseSubscription(ctx context.Context, params application.PurchaseParams) (application.PurchaseResult, error)
	ListSubscriptions(ctx context.Context, params application.ListSubscriptionsParams) ([]persistence.Subscription, error)
	ListPayments(ctx context.Context, params application.ListPaymentsParams) ([]persistence.Payment, error)
}

type SubscriptionHandler struct {
	service   subscriptionService
	responder responder
}

func NewSubscriptionHandler(service subscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, responder: newResponder(logger)}
}

// Purchase buys a weekly or monthly entitlement for the schedule in the path.
func (h *SubscriptionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	var req purchaseRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	params := application.PurchaseParams{
		ScheduleID: scheduleID,
		Type:       persistence.SubscriptionType(req.Type),
		Payment: application.PaymentConfirmation{
			TransactionRef: req.Payment.TransactionRef,
			Amount:         req.Payment.Amount,
			Method:         req.Payment.Method,
			Status:         persistence.PaymentStatus(req.Payment.Status),
			FailureReason:  req.Payment.FailureReason,
		},
	}
	if req.StartDate != "" {
		start, err := recurrence.ParseDate(req.StartDate)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"start_date": "must be a YYYY-MM-DD date"},
			})
			return
		}
		params.StartDate = start
	}
	params.Principal, _ = PrincipalFromContext(r.Context())

	result, err := h.service.PurchaseSubscription(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, purchaseResponse{
		Subscription:     toSubscriptionDTO(result.Subscription),
		Payment:          toPaymentDTO(result.Payment),
		AttachedSessions: result.AttachedSessions,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	subscriptions, err := h.service.ListSubscriptions(r.Context(), application.ListSubscriptionsParams{
		Principal:  principal,
		ScheduleID: strings.TrimSpace(r.URL.Query().Get("schedule_id")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]subscriptionDTO, 0, len(subscriptions))
	for _, s := range subscriptions {
		out = append(out, toSubscriptionDTO(s))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSubscriptionsResponse{Subscriptions: out})
}

// Payments serves the admin payment ledger, filtered by query parameters.
func (h *SubscriptionHandler) Payments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	query := r.URL.Query()
	principal, _ := PrincipalFromContext(r.Context())
	payments, err := h.service.ListPayments(r.Context(), application.ListPaymentsParams{
		Principal:  principal,
		ScheduleID: strings.TrimSpace(query.Get("schedule_id")),
		StudentID:  strings.TrimSpace(query.Get("student_id")),
		Status:     persistence.PaymentStatus(strings.TrimSpace(query.Get("status"))),
		From:       from,
		To:         to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]paymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPaymentsResponse{Payments: out})
}

type paymentRequest struct {
	TransactionRef string `json:"transaction_ref" validate:"required"`
	Amount         int64  `json:"amount" validate:"gte=0"`
	Method         string `json:"method" validate:"required"`
	Status         string `json:"status" validate:"required,oneof=pending completed failed refunded"`
	FailureReason  string `json:"failure_reason"`
}

type purchaseRequest struct {
	Type      string         `json:"type" validate:"required,oneof=weekly monthly"`
	StartDate string         `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Payment   paymentRequest `json:"payment" validate:"required"`
}

type purchaseResponse struct {
	Subscription     subscriptionDTO `json:"subscription"`
	Payment          paymentDTO      `json:"payment"`
	AttachedSessions int64           `json:"attached_sessions"`
}

type listSubscriptionsResponse struct {
	Subscriptions []subscriptionDTO `json:"subscriptions"`
}

type listPaymentsResponse struct {
	Payments []paymentDTO `json:"payments"`
}
