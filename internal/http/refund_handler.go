package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
)

type RefundService interface {
	Request(ctx context.Context, paymentRef string, amount float64, reason, requestedBy string) (*domain.Refund, error)
	Approve(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error)
	Reject(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error)
	ListPending(ctx context.Context) ([]*domain.Refund, error)
}

type RefundHandler struct {
	refunds RefundService
	timeout time.Duration
}

func NewRefundHandler(refunds RefundService, timeout time.Duration) *RefundHandler {
	return &RefundHandler{refunds: refunds, timeout: timeout}
}

type RequestRefundDTO struct {
	PaymentRef string  `json:"payment_ref"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason,omitempty"`
}

type RefundDTO struct {
	RefundID        string  `json:"refund_id"`
	PaymentID       string  `json:"payment_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Reason          string  `json:"reason,omitempty"`
	Status          string  `json:"status"`
	RequestedBy     string  `json:"requested_by"`
	ApprovedBy      string  `json:"approved_by,omitempty"`
	GatewayRefundID string  `json:"gateway_refund_id,omitempty"`
}

// POST /refunds
func (h *RefundHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var req RequestRefundDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.PaymentRef == "" {
		respondError(w, http.StatusBadRequest, "missing_payment_ref", "payment_ref is required")
		return
	}

	refund, err := h.refunds.Request(ctx, req.PaymentRef, req.Amount, req.Reason, buyerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toRefundDTO(refund))
}

// POST /refunds/{id}/approve
func (h *RefundHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.refunds.Approve)
}

// POST /refunds/{id}/reject
func (h *RefundHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.refunds.Reject)
}

// GET /refunds/pending
func (h *RefundHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	refunds, err := h.refunds.ListPending(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]RefundDTO, len(refunds))
	for i, refund := range refunds {
		dtos[i] = toRefundDTO(refund)
	}
	respondJSON(w, http.StatusOK, dtos)
}

func (h *RefundHandler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error)) {

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	approverID := buyerIDFromContext(r.Context())
	if approverID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	refundID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_refund_id", "refund id must be a UUID")
		return
	}

	refund, err := fn(ctx, refundID, approverID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRefundDTO(refund))
}

func toRefundDTO(refund *domain.Refund) RefundDTO {
	return RefundDTO{
		RefundID:        refund.ID.String(),
		PaymentID:       refund.PaymentID.String(),
		Amount:          refund.Amount,
		Currency:        refund.Currency,
		Reason:          refund.Reason,
		Status:          string(refund.Status),
		RequestedBy:     refund.RequestedBy,
		ApprovedBy:      refund.ApprovedBy,
		GatewayRefundID: refund.GatewayRefundID,
	}
}
