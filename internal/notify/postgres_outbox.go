package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fjod/go_marketplace/internal/domain"
)

type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

func (r *PostgresOutbox) SaveNotification(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	query := `INSERT INTO notification_outbox (receiver_id, payload, published, created_at)
	          VALUES ($1, $2, FALSE, NOW())`
	if _, err := r.db.ExecContext(ctx, query, n.ReceiverID, payload); err != nil {
		return fmt.Errorf("insert notification outbox row: %w", err)
	}
	return nil
}

func (r *PostgresOutbox) GetUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, receiver_id, payload, created_at
	          FROM notification_outbox
	          WHERE published = FALSE
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished notifications: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.ReceiverID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresOutbox) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE notification_outbox SET published = TRUE, published_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark notification %d published: %w", id, err)
	}
	return nil
}

func (r *PostgresOutbox) Close() error {
	return r.db.Close()
}
