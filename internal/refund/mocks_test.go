package refund

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
)

// memoryLedger mirrors the transactional semantics of the Postgres
// repository: conservation checks and transitions run under one lock.
type memoryLedger struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment
	refunds  map[uuid.UUID]*domain.Refund
	ledger   map[uuid.UUID]float64 // refund id -> amount
	seq      int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		payments: make(map[uuid.UUID]*domain.Payment),
		refunds:  make(map[uuid.UUID]*domain.Refund),
		ledger:   make(map[uuid.UUID]float64),
	}
}

func (l *memoryLedger) RecordPayment(_ context.Context, p *domain.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.payments {
		if existing.GatewayRef == p.GatewayRef {
			return nil
		}
	}
	copied := *p
	l.payments[p.ID] = &copied
	return nil
}

func (l *memoryLedger) GetPaymentByRef(_ context.Context, gatewayRef string) (*domain.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.GatewayRef == gatewayRef {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (l *memoryLedger) GetPaymentByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (l *memoryLedger) CreateRefund(_ context.Context, r *domain.Refund) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining, err := l.remaining(r.PaymentID)
	if err != nil {
		return err
	}
	if r.Amount > remaining {
		return ErrExceedsRefundable
	}
	l.seq++
	copied := *r
	copied.CreatedAt = time.Unix(int64(l.seq), 0)
	l.refunds[r.ID] = &copied
	return nil
}

func (l *memoryLedger) GetRefund(_ context.Context, id uuid.UUID) (*domain.Refund, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.refunds[id]
	if !ok {
		return nil, ErrRefundNotFound
	}
	copied := *r
	return &copied, nil
}

func (l *memoryLedger) ListPending(_ context.Context) ([]*domain.Refund, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Refund
	for _, r := range l.refunds {
		if r.Status == domain.RefundStatusPending {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *memoryLedger) MarkProcessing(_ context.Context, id uuid.UUID, approverID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.refunds[id]
	if !ok {
		return ErrRefundNotFound
	}
	if r.Status != domain.RefundStatusPending {
		return ErrRefundNotPending
	}
	remaining, err := l.remaining(r.PaymentID)
	if err != nil {
		return err
	}
	// Its own PENDING amount is not allocated yet, so only the others count.
	if r.Amount > remaining {
		return ErrExceedsRefundable
	}
	r.Status = domain.RefundStatusProcessing
	r.ApprovedBy = approverID
	return nil
}

func (l *memoryLedger) MarkCompleted(_ context.Context, id uuid.UUID, gatewayRefundID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.refunds[id]
	if !ok || r.Status != domain.RefundStatusProcessing {
		return nil
	}
	r.Status = domain.RefundStatusCompleted
	r.GatewayRefundID = gatewayRefundID
	l.ledger[id] = r.Amount
	l.rollPaymentStatus(r.PaymentID)
	return nil
}

func (l *memoryLedger) MarkRejected(_ context.Context, id uuid.UUID, reason string) error {
	return l.rejectFrom(id, reason, domain.RefundStatusProcessing)
}

func (l *memoryLedger) RejectPending(_ context.Context, id uuid.UUID, reason string) error {
	return l.rejectFrom(id, reason, domain.RefundStatusPending)
}

func (l *memoryLedger) rejectFrom(id uuid.UUID, reason string, from domain.RefundStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.refunds[id]
	if !ok {
		return ErrRefundNotFound
	}
	if r.Status != from {
		return ErrRefundNotPending
	}
	r.Status = domain.RefundStatusRejected
	r.FailureReason = reason
	return nil
}

func (l *memoryLedger) ReconcileRefunded(_ context.Context, paymentID uuid.UUID, refundedAmount float64, gatewayRefundID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}

	var oldest *domain.Refund
	for _, r := range l.refunds {
		if r.PaymentID != paymentID || r.Status != domain.RefundStatusProcessing {
			continue
		}
		if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) {
			oldest = r
		}
	}
	if oldest != nil {
		oldest.Status = domain.RefundStatusCompleted
		oldest.GatewayRefundID = gatewayRefundID
		l.ledger[oldest.ID] = oldest.Amount
	}

	if refundedAmount >= p.Amount {
		p.Status = domain.PaymentStatusRefunded
	} else {
		p.Status = domain.PaymentStatusPartiallyRefunded
	}
	return nil
}

func (l *memoryLedger) Close() error { return nil }

func (l *memoryLedger) remaining(paymentID uuid.UUID) (float64, error) {
	p, ok := l.payments[paymentID]
	if !ok {
		return 0, ErrPaymentNotFound
	}
	allocated := 0.0
	for _, r := range l.refunds {
		if r.PaymentID != paymentID {
			continue
		}
		if r.Status == domain.RefundStatusCompleted || r.Status == domain.RefundStatusProcessing {
			allocated += r.Amount
		}
	}
	return p.Amount - allocated, nil
}

func (l *memoryLedger) rollPaymentStatus(paymentID uuid.UUID) {
	p := l.payments[paymentID]
	refunded := 0.0
	for _, r := range l.refunds {
		if r.PaymentID == paymentID && r.Status == domain.RefundStatusCompleted {
			refunded += r.Amount
		}
	}
	if refunded >= p.Amount {
		p.Status = domain.PaymentStatusRefunded
	} else if refunded > 0 {
		p.Status = domain.PaymentStatusPartiallyRefunded
	}
}

func (l *memoryLedger) payment(id uuid.UUID) *domain.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *l.payments[id]
	return &copied
}

// rejectingGateway refuses every refund the way a provider rejects an
// already-settled charge.
type rejectingGateway struct {
	*gateway.SimGateway
}

func (g *rejectingGateway) CreateRefund(context.Context, string, int64, string) (*gateway.RefundResult, error) {
	return nil, &gateway.GatewayError{Code: "charge_already_refunded", Message: "charge has already been refunded"}
}
