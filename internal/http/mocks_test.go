package http

import (
	"context"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
)

type mockSessionService struct {
	createFn func(ctx context.Context, buyerID string, cart []domain.CartLineSnapshot, addressID, couponCode string) (*domain.PaymentSession, error)
	verifyFn func(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error)
}

func (m *mockSessionService) Create(ctx context.Context, buyerID string, cart []domain.CartLineSnapshot, addressID, couponCode string) (*domain.PaymentSession, error) {
	return m.createFn(ctx, buyerID, cart, addressID, couponCode)
}

func (m *mockSessionService) Verify(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error) {
	return m.verifyFn(ctx, buyerID, sessionID)
}

type mockRefundService struct {
	requestFn     func(ctx context.Context, paymentRef string, amount float64, reason, requestedBy string) (*domain.Refund, error)
	approveFn     func(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error)
	rejectFn      func(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error)
	listPendingFn func(ctx context.Context) ([]*domain.Refund, error)
}

func (m *mockRefundService) Request(ctx context.Context, paymentRef string, amount float64, reason, requestedBy string) (*domain.Refund, error) {
	return m.requestFn(ctx, paymentRef, amount, reason, requestedBy)
}

func (m *mockRefundService) Approve(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error) {
	return m.approveFn(ctx, refundID, approverID)
}

func (m *mockRefundService) Reject(ctx context.Context, refundID uuid.UUID, approverID string) (*domain.Refund, error) {
	return m.rejectFn(ctx, refundID, approverID)
}

func (m *mockRefundService) ListPending(ctx context.Context) ([]*domain.Refund, error) {
	return m.listPendingFn(ctx)
}

type mockOrderReader struct {
	getFn  func(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	listFn func(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

func (m *mockOrderReader) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return m.getFn(ctx, id)
}

func (m *mockOrderReader) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return m.listFn(ctx, buyerID)
}

type mockDispatcher struct {
	handleFn func(ctx context.Context, payload []byte, signatureHeader string) error
	payloads [][]byte
}

func (m *mockDispatcher) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	m.payloads = append(m.payloads, payload)
	if m.handleFn != nil {
		return m.handleFn(ctx, payload, signatureHeader)
	}
	return nil
}

// unavailableGateway simulates an open circuit breaker.
type unavailableGateway struct{}

func (unavailableGateway) CreateIntent(context.Context, gateway.IntentRequest) (*gateway.Intent, error) {
	return nil, gateway.ErrGatewayUnavailable
}

func (unavailableGateway) CreateRefund(context.Context, string, int64, string) (*gateway.RefundResult, error) {
	return nil, gateway.ErrGatewayUnavailable
}

func (unavailableGateway) VerifyWebhook([]byte, string) (*gateway.Event, error) {
	return nil, &gateway.SignatureError{Reason: "unreachable"}
}

func (unavailableGateway) AccountOnboarded(context.Context, string) (bool, error) {
	return false, gateway.ErrGatewayUnavailable
}
