package notify

import (
	"context"
	"time"

	"github.com/fjod/go_marketplace/internal/domain"
)

// Notifier publishes a notification for eventual delivery. Callers treat it
// as best-effort: a notify failure is logged, never propagated into the
// transaction that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// OutboxEvent is one durable "notification to publish" record. The core
// transaction writes the row; the poller delivers it.
type OutboxEvent struct {
	ID         int64
	ReceiverID string
	Payload    []byte
	CreatedAt  time.Time
}

type OutboxRepository interface {
	SaveNotification(ctx context.Context, n domain.Notification) error
	GetUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	Close() error
}

// OutboxNotifier implements Notifier by writing to the durable outbox.
type OutboxNotifier struct {
	repo OutboxRepository
}

func NewOutboxNotifier(repo OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{repo: repo}
}

func (o *OutboxNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return o.repo.SaveNotification(ctx, n)
}
