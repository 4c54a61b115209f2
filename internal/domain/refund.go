package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
)

// Payment anchors the refund ledger: one row per captured gateway payment.
type Payment struct {
	ID         uuid.UUID     `json:"id"`
	GatewayRef string        `json:"gateway_ref"`
	SessionID  string        `json:"session_id"`
	BuyerID    string        `json:"buyer_id"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Status     PaymentStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusCompleted  RefundStatus = "COMPLETED"
	RefundStatusRejected   RefundStatus = "REJECTED"
)

func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusRejected
}

// Refund lifecycle: PENDING -> PROCESSING -> COMPLETED, PENDING -> REJECTED,
// or PROCESSING -> REJECTED on gateway-side failure.
type Refund struct {
	ID              uuid.UUID    `json:"id"`
	PaymentID       uuid.UUID    `json:"payment_id"`
	Amount          float64      `json:"amount"`
	Currency        string       `json:"currency"`
	Reason          string       `json:"reason"`
	Status          RefundStatus `json:"status"`
	RequestedBy     string       `json:"requested_by"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
