package refund

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
)

// Service drives the refund state machine:
// PENDING -> PROCESSING -> COMPLETED, PENDING -> REJECTED,
// PROCESSING -> REJECTED on gateway-side failure.
type Service struct {
	repo Repository
	gw   gateway.Gateway
}

func NewService(repo Repository, gw gateway.Gateway) *Service {
	return &Service{repo: repo, gw: gw}
}

// RecordPayment anchors a captured payment in the ledger. Called by the
// webhook dispatcher on payment_intent.succeeded; replays are no-ops.
func (s *Service) RecordPayment(ctx context.Context, gatewayRef string, sess *domain.PaymentSession) error {
	return s.repo.RecordPayment(ctx, &domain.Payment{
		ID:         uuid.New(),
		GatewayRef: gatewayRef,
		SessionID:  sess.ID,
		BuyerID:    sess.BuyerID,
		Amount:     sess.TotalAmount,
		Currency:   sess.Currency,
		Status:     domain.PaymentStatusPaid,
	})
}

// Request opens a PENDING refund. The conservation check runs inside the
// ledger transaction, so concurrent requests cannot jointly over-refund.
func (s *Service) Request(ctx context.Context, paymentRef string, amount float64, reason, requestedBy string) (*domain.Refund, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}
	if requestedBy == "" {
		return nil, fmt.Errorf("%w: requester is required", domain.ErrValidation)
	}

	payment, err := s.repo.GetPaymentByRef(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, paymentRef)
		}
		return nil, err
	}

	refund := &domain.Refund{
		ID:          uuid.New(),
		PaymentID:   payment.ID,
		Amount:      amount,
		Currency:    payment.Currency,
		Reason:      reason,
		Status:      domain.RefundStatusPending,
		RequestedBy: requestedBy,
	}
	if err := s.repo.CreateRefund(ctx, refund); err != nil {
		if errors.Is(err, ErrExceedsRefundable) {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return nil, err
	}
	return refund, nil
}

// Approve moves the refund to PROCESSING, calls the gateway, and settles the
// result: COMPLETED with the gateway refund id, or REJECTED with the
// adapter's message.
func (s *Service) Approve(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error) {
	if err := s.repo.MarkProcessing(ctx, refundID, approverID); err != nil {
		switch {
		case errors.Is(err, ErrRefundNotFound):
			return nil, fmt.Errorf("%w: refund %s", domain.ErrNotFound, refundID)
		case errors.Is(err, ErrRefundNotPending):
			return nil, fmt.Errorf("%w: refund %s is not pending", domain.ErrConflict, refundID)
		case errors.Is(err, ErrExceedsRefundable):
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return nil, err
	}

	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.GetPaymentByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	result, gwErr := s.gw.CreateRefund(ctx, payment.GatewayRef, gateway.ToMinorUnits(refund.Amount), refund.Reason)
	if gwErr != nil {
		log.Printf("gateway refund failed for refund %s (payment %s): %v", refundID, payment.GatewayRef, gwErr)
		if err := s.repo.MarkRejected(ctx, refundID, gwErr.Error()); err != nil {
			log.Printf("failed to mark refund %s rejected: %v", refundID, err)
		}
		return nil, gwErr
	}

	if err := s.repo.MarkCompleted(ctx, refundID, result.ID); err != nil {
		// The money moved; the webhook reconciliation will settle the row.
		log.Printf("failed to mark refund %s completed: %v", refundID, err)
	}
	return s.repo.GetRefund(ctx, refundID)
}

// Reject closes a PENDING refund without touching the gateway. A refund the
// gateway is already processing cannot be rejected here; its outcome is
// decided by the gateway response or the reconciliation webhook.
func (s *Service) Reject(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error) {
	if err := s.repo.RejectPending(ctx, refundID, "rejected by "+approverID); err != nil {
		switch {
		case errors.Is(err, ErrRefundNotFound):
			return nil, fmt.Errorf("%w: refund %s", domain.ErrNotFound, refundID)
		case errors.Is(err, ErrRefundNotPending):
			return nil, fmt.Errorf("%w: refund %s is not pending", domain.ErrConflict, refundID)
		}
		return nil, err
	}
	return s.repo.GetRefund(ctx, refundID)
}

func (s *Service) ListPending(ctx context.Context) ([]*domain.Refund, error) {
	return s.repo.ListPending(ctx)
}

// ReconcileFromWebhook applies a charge.refunded event. The event carries the
// cumulative refunded amount; the webhook wins over the synchronous adapter
// response, but a COMPLETED refund is never regressed.
func (s *Service) ReconcileFromWebhook(ctx context.Context, event *gateway.Event) error {
	payment, err := s.repo.GetPaymentByRef(ctx, event.PaymentRef)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			// Refund for a payment this service never recorded; log for
			// reconciliation instead of failing the webhook.
			log.Printf("charge.refunded for unknown payment ref %s, event %s", event.PaymentRef, event.ID)
			return nil
		}
		return err
	}

	refunded := gateway.FromMinorUnits(event.AmountMinor)
	return s.repo.ReconcileRefunded(ctx, payment.ID, refunded, event.ID)
}
