package refund

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")
	// ErrRefundNotPending means a transition was attempted on a refund that
	// already left the PENDING state.
	ErrRefundNotPending = errors.New("refund is not pending")
	// ErrExceedsRefundable means the requested amount is larger than the
	// remaining refundable amount of the payment.
	ErrExceedsRefundable = errors.New("amount exceeds remaining refundable amount")
)

// Repository is the refund ledger. Conservation-sensitive operations
// (CreateRefund, MarkProcessing) run inside a single database transaction
// with the payment row locked, so two concurrent requests can never jointly
// over-refund.
type Repository interface {
	// RecordPayment inserts the payment once; replays of the same gateway
	// reference are no-ops.
	RecordPayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByRef(ctx context.Context, gatewayRef string) (*domain.Payment, error)
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)

	// CreateRefund checks the conservation invariant under a row lock and
	// inserts a PENDING refund.
	CreateRefund(ctx context.Context, r *domain.Refund) error
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	ListPending(ctx context.Context) ([]*domain.Refund, error)

	// MarkProcessing transitions PENDING -> PROCESSING, re-checking the
	// conservation invariant in the same transaction.
	MarkProcessing(ctx context.Context, id uuid.UUID, approverID string) error
	// MarkCompleted transitions to COMPLETED, records the gateway refund id,
	// writes a ledger entry and rolls the payment status forward.
	MarkCompleted(ctx context.Context, id uuid.UUID, gatewayRefundID string) error
	// MarkRejected transitions PROCESSING -> REJECTED after a gateway-side
	// failure.
	MarkRejected(ctx context.Context, id uuid.UUID, reason string) error
	// RejectPending transitions PENDING -> REJECTED. An admin decision never
	// touches a refund the gateway is already processing.
	RejectPending(ctx context.Context, id uuid.UUID, reason string) error

	// ReconcileRefunded applies a charge.refunded webhook: sets the payment
	// status from the cumulative refunded amount and completes the oldest
	// matching PROCESSING refund. Completed refunds are never regressed.
	ReconcileRefunded(ctx context.Context, paymentID uuid.UUID, refundedAmount float64, gatewayRefundID string) error

	Close() error
}
