package gateway

import (
	"context"
	"fmt"
	"math"
)

// Event types emitted by the payment provider. Unknown types must be
// acknowledged without action.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// GatewayError is a provider-side rejection (invalid account, amount below
// minimum, transport failure). Retryable for intent creation, terminal for
// refund attempts the provider explicitly rejected.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// SignatureError means the webhook payload failed verification. The caller
// must reject with 401 and must not process the payload.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature invalid: %s", e.Reason)
}

type IntentRequest struct {
	AmountMinor         int64
	Currency            string
	MarketplaceFeeMinor int64
	TransferDestination string
	Metadata            map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

type RefundResult struct {
	ID     string
	Status string
}

// Event is a verified webhook event. AmountMinor carries the cumulative
// refunded amount for charge.refunded events.
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	PaymentRef  string            `json:"payment_ref"`
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Gateway is the provider-agnostic payment processor contract. All monetary
// amounts cross this boundary as integer minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// CreateRefund refunds amountMinor of the payment, or the full payment
	// when amountMinor is zero.
	CreateRefund(ctx context.Context, paymentRef string, amountMinor int64, reason string) (*RefundResult, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
	AccountOnboarded(ctx context.Context, accountRef string) (bool, error)
}

// ToMinorUnits converts a major-unit amount to integer minor units,
// rounding half away from zero to avoid floating-point drift.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
