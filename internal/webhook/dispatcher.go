package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
	"github.com/fjod/go_marketplace/internal/notify"
	"github.com/fjod/go_marketplace/internal/store"
)

const (
	// EventLogTTL keeps processed event ids long enough to absorb the
	// gateway's at-least-once redelivery window.
	EventLogTTL = 24 * time.Hour

	eventKeyPrefix = "payment:event:"

	metadataBuyerID   = "buyer_id"
	metadataSessionID = "session_id"
)

// SessionManager is the slice of the session service the dispatcher needs.
// The gateway callback is the only trusted trigger of session transitions.
type SessionManager interface {
	Get(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error)
	Complete(ctx context.Context, sess *domain.PaymentSession) error
	Fail(ctx context.Context, sess *domain.PaymentSession) error
}

type Materializer interface {
	Materialize(ctx context.Context, sess *domain.PaymentSession) []domain.MaterializationFailure
}

type RefundReconciler interface {
	RecordPayment(ctx context.Context, gatewayRef string, sess *domain.PaymentSession) error
	ReconcileFromWebhook(ctx context.Context, event *gateway.Event) error
}

type Verifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error)
}

// Dispatcher verifies, deduplicates and routes gateway callbacks. Handlers
// are side-effect idempotent: replaying an event for an already-settled
// session or refund is a no-op, never a duplicate order.
type Dispatcher struct {
	verifier     Verifier
	eventLog     store.KVStore
	sessions     SessionManager
	materializer Materializer
	refunds      RefundReconciler
	notifier     notify.Notifier
}

func NewDispatcher(verifier Verifier, eventLog store.KVStore, sessions SessionManager,
	materializer Materializer, refunds RefundReconciler, notifier notify.Notifier) *Dispatcher {
	return &Dispatcher{
		verifier:     verifier,
		eventLog:     eventLog,
		sessions:     sessions,
		materializer: materializer,
		refunds:      refunds,
		notifier:     notifier,
	}
}

// Handle processes one raw gateway callback. A signature failure aborts with
// no side effects. Once the event id is claimed in the idempotency log the
// call succeeds even if a downstream side effect partially failed - the
// financial fact is durably captured and the gateway must not retry forever.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := d.verifier.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	// Claim before side effects: redelivery after a crash leaves an
	// operator-visible stuck event instead of a duplicate order.
	claimed, err := d.eventLog.PutIfAbsent(ctx, eventKeyPrefix+event.ID, []byte(event.Type), EventLogTTL)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", event.ID, err)
	}
	if !claimed {
		log.Printf("event %s already processed, acknowledging", event.ID)
		return nil
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		d.handlePaymentSucceeded(ctx, event)
	case gateway.EventPaymentFailed:
		d.handlePaymentFailed(ctx, event)
	case gateway.EventChargeRefunded:
		if err := d.refunds.ReconcileFromWebhook(ctx, event); err != nil {
			log.Printf("refund reconciliation failed for event %s: %v", event.ID, err)
		}
	default:
		// Forward compatibility: acknowledge new gateway event types.
		log.Printf("ignoring unknown event type %q (event %s)", event.Type, event.ID)
	}
	return nil
}

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, event *gateway.Event) {
	sess, ok := d.loadSession(ctx, event)
	if !ok {
		return
	}
	if sess.Status == domain.SessionStatusCompleted {
		return // replayed or racing success for a settled session
	}

	// The captured amount must match the session total. A mismatch means the
	// intent was created for a different amount than the session settled on;
	// holding the session back keeps the money and the order from diverging.
	if event.AmountMinor != 0 && event.AmountMinor != gateway.ToMinorUnits(sess.TotalAmount) {
		log.Printf("event %s captured %d minor units but session %s totals %d; holding for reconciliation",
			event.ID, event.AmountMinor, sess.ID, gateway.ToMinorUnits(sess.TotalAmount))
		if err := d.notifier.Notify(ctx, domain.Notification{
			Title:      "Captured amount mismatch",
			Message:    fmt.Sprintf("Event %s captured %d minor units for session %s (expected %d).", event.ID, event.AmountMinor, sess.ID, gateway.ToMinorUnits(sess.TotalAmount)),
			CreatorID:  "system",
			ReceiverID: domain.AdminChannel,
			Link:       "/admin/reconciliation",
		}); err != nil {
			log.Printf("failed to enqueue amount-mismatch notification: %v", err)
		}
		return
	}

	if err := d.sessions.Complete(ctx, sess); err != nil {
		log.Printf("failed to complete session %s for event %s: %v", sess.ID, event.ID, err)
		return
	}
	if err := d.refunds.RecordPayment(ctx, event.PaymentRef, sess); err != nil {
		log.Printf("failed to record payment %s in ledger: %v", event.PaymentRef, err)
	}

	failures := d.materializer.Materialize(ctx, sess)
	if len(failures) > 0 {
		log.Printf("session %s materialized with %d failed shop group(s)", sess.ID, len(failures))
	}
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, event *gateway.Event) {
	sess, ok := d.loadSession(ctx, event)
	if !ok {
		return
	}
	if sess.Status == domain.SessionStatusCompleted {
		// Out-of-order delivery: a failed event after success is ignored.
		log.Printf("ignoring failed event %s for completed session %s", event.ID, sess.ID)
		return
	}

	if err := d.sessions.Fail(ctx, sess); err != nil {
		log.Printf("failed to mark session %s failed: %v", sess.ID, err)
		return
	}
	if err := d.notifier.Notify(ctx, domain.Notification{
		Title:      "Payment failed",
		Message:    "Your payment could not be processed. Please try again.",
		CreatorID:  domain.AdminChannel,
		ReceiverID: sess.BuyerID,
		Link:       "/checkout",
	}); err != nil {
		log.Printf("failed to enqueue payment-failed notification: %v", err)
	}
}

// loadSession resolves the session referenced by the event metadata. A
// missing session is recorded and acknowledged - the payment may belong to
// an already-expired or cancelled session; reconciliation handles those.
func (d *Dispatcher) loadSession(ctx context.Context, event *gateway.Event) (*domain.PaymentSession, bool) {
	buyerID := event.Metadata[metadataBuyerID]
	sessionID := event.Metadata[metadataSessionID]
	if buyerID == "" || sessionID == "" {
		log.Printf("event %s is missing session metadata", event.ID)
		return nil, false
	}

	sess, err := d.sessions.Get(ctx, buyerID, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("event %s references missing or expired session %s", event.ID, sessionID)
		} else {
			log.Printf("failed to load session %s for event %s: %v", sessionID, event.ID, err)
		}
		return nil, false
	}
	return sess, true
}
