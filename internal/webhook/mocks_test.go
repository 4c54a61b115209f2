package webhook

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
)

type mockSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.PaymentSession
}

func newMockSessions(sessions ...*domain.PaymentSession) *mockSessions {
	m := &mockSessions{sessions: make(map[string]*domain.PaymentSession)}
	for _, s := range sessions {
		m.sessions[s.BuyerID+":"+s.ID] = s
	}
	return m
}

func (m *mockSessions) Get(_ context.Context, buyerID, sessionID string) (*domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[buyerID+":"+sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	copied := *sess
	return &copied, nil
}

func (m *mockSessions) Complete(_ context.Context, sess *domain.PaymentSession) error {
	return m.setStatus(sess, domain.SessionStatusCompleted)
}

func (m *mockSessions) Fail(_ context.Context, sess *domain.PaymentSession) error {
	return m.setStatus(sess, domain.SessionStatusFailed)
}

func (m *mockSessions) setStatus(sess *domain.PaymentSession, status domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Status = status
	stored, ok := m.sessions[sess.BuyerID+":"+sess.ID]
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sess.ID)
	}
	stored.Status = status
	return nil
}

func (m *mockSessions) status(buyerID, sessionID string) domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[buyerID+":"+sessionID].Status
}

type mockMaterializer struct {
	mu       sync.Mutex
	calls    int
	failures []domain.MaterializationFailure
}

func (m *mockMaterializer) Materialize(_ context.Context, _ *domain.PaymentSession) []domain.MaterializationFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.failures
}

func (m *mockMaterializer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRefunds struct {
	mu         sync.Mutex
	payments   []string
	reconciled []*gateway.Event
}

func (m *mockRefunds) RecordPayment(_ context.Context, gatewayRef string, _ *domain.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, gatewayRef)
	return nil
}

func (m *mockRefunds) ReconcileFromWebhook(_ context.Context, event *gateway.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled = append(m.reconciled, event)
	return nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) received(receiverID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.sent {
		if n.ReceiverID == receiverID {
			out = append(out, n)
		}
	}
	return out
}
