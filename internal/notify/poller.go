package notify

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Poller drains the notification outbox into kafka. Delivery is at-least-
// once: a row is marked published only after the write succeeds.
type Poller struct {
	tick   time.Duration
	repo   OutboxRepository
	writer *kafka.Writer
}

func NewPoller(repo OutboxRepository, brokers ...string) *Poller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "notification-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Poller{tick: time.Second, repo: repo, writer: w}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublished(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) Close() error {
	return p.writer.Close()
}

func (p *Poller) processUnpublished(ctx context.Context) {
	events, err := p.repo.GetUnpublished(ctx, 100)
	if err != nil {
		log.Printf("failed to fetch outbox notifications: %v", err)
		return
	}

	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.ReceiverID), // per-receiver ordering
			Value: event.Payload,
			Headers: []kafka.Header{
				{Key: "outbox_id", Value: []byte(strconv.FormatInt(event.ID, 10))},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("failed to publish notification id = %v with error %v", event.ID, err)
			continue
		}

		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			log.Printf("failed to mark notification as published id = %v with error %v", event.ID, err)
		}
	}
}
