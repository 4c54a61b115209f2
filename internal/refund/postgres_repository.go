package refund

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) RecordPayment(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, gateway_ref, session_id, buyer_id, amount, currency, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          ON CONFLICT (gateway_ref) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.GatewayRef, p.SessionID, p.BuyerID, p.Amount, p.Currency, p.Status)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPaymentByRef(ctx context.Context, gatewayRef string) (*domain.Payment, error) {
	query := `SELECT id, gateway_ref, session_id, buyer_id, amount, currency, status, created_at, updated_at
	          FROM payments WHERE gateway_ref = $1`

	var p domain.Payment
	err := r.db.QueryRowContext(ctx, query, gatewayRef).Scan(
		&p.ID, &p.GatewayRef, &p.SessionID, &p.BuyerID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by ref: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT id, gateway_ref, session_id, buyer_id, amount, currency, status, created_at, updated_at
	          FROM payments WHERE id = $1`

	var p domain.Payment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.GatewayRef, &p.SessionID, &p.BuyerID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by id: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreateRefund(ctx context.Context, refund *domain.Refund) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		remaining, err := remainingRefundable(ctx, tx, refund.PaymentID)
		if err != nil {
			return err
		}
		if refund.Amount > remaining {
			return ErrExceedsRefundable
		}

		query := `INSERT INTO refunds (id, payment_id, amount, currency, reason, status, requested_by, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`
		_, err = tx.ExecContext(ctx, query,
			refund.ID, refund.PaymentID, refund.Amount, refund.Currency,
			refund.Reason, refund.Status, refund.RequestedBy)
		if err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT id, payment_id, amount, currency, reason, status, requested_by,
	                 COALESCE(approved_by, ''), COALESCE(gateway_refund_id, ''),
	                 COALESCE(failure_reason, ''), created_at, updated_at
	          FROM refunds WHERE id = $1`

	refund, err := scanRefund(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query refund by id: %w", err)
	}
	return refund, nil
}

func (r *PostgresRepository) ListPending(ctx context.Context) ([]*domain.Refund, error) {
	query := `SELECT id, payment_id, amount, currency, reason, status, requested_by,
	                 COALESCE(approved_by, ''), COALESCE(gateway_refund_id, ''),
	                 COALESCE(failure_reason, ''), created_at, updated_at
	          FROM refunds WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, domain.RefundStatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*domain.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return refunds, nil
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id uuid.UUID, approverID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var paymentID uuid.UUID
		var status domain.RefundStatus
		var amount float64
		err := tx.QueryRowContext(ctx,
			`SELECT payment_id, status, amount FROM refunds WHERE id = $1 FOR UPDATE`, id).
			Scan(&paymentID, &status, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRefundNotFound
		}
		if err != nil {
			return fmt.Errorf("lock refund: %w", err)
		}
		if status != domain.RefundStatusPending {
			return ErrRefundNotPending
		}

		// The invariant is re-checked here because another refund may have
		// completed between request and approval.
		remaining, err := remainingRefundable(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if amount > remaining {
			return ErrExceedsRefundable
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE refunds SET status = $1, approved_by = $2, updated_at = NOW() WHERE id = $3`,
			domain.RefundStatusProcessing, approverID, id)
		if err != nil {
			return fmt.Errorf("update refund to processing: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayRefundID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var paymentID uuid.UUID
		var amount float64
		err := tx.QueryRowContext(ctx,
			`UPDATE refunds SET status = $1, gateway_refund_id = $2, updated_at = NOW()
			 WHERE id = $3 AND status = $4
			 RETURNING payment_id, amount`,
			domain.RefundStatusCompleted, gatewayRefundID, id, domain.RefundStatusProcessing).
			Scan(&paymentID, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			// Already completed (webhook raced the synchronous response) or
			// never approved; either way nothing to do.
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete refund: %w", err)
		}

		if err := insertLedgerEntry(ctx, tx, paymentID, id, amount); err != nil {
			return err
		}
		return rollPaymentStatus(ctx, tx, paymentID)
	})
}

func (r *PostgresRepository) MarkRejected(ctx context.Context, id uuid.UUID, reason string) error {
	return r.rejectFrom(ctx, id, reason, domain.RefundStatusProcessing)
}

func (r *PostgresRepository) RejectPending(ctx context.Context, id uuid.UUID, reason string) error {
	return r.rejectFrom(ctx, id, reason, domain.RefundStatusPending)
}

func (r *PostgresRepository) rejectFrom(ctx context.Context, id uuid.UUID, reason string, from domain.RefundStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refunds SET status = $1, failure_reason = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		domain.RefundStatusRejected, reason, id, from)
	if err != nil {
		return fmt.Errorf("reject refund: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject refund rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRefundNotPending
	}
	return nil
}

func (r *PostgresRepository) ReconcileRefunded(ctx context.Context, paymentID uuid.UUID, refundedAmount float64, gatewayRefundID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var paymentAmount float64
		err := tx.QueryRowContext(ctx,
			`SELECT amount FROM payments WHERE id = $1 FOR UPDATE`, paymentID).
			Scan(&paymentAmount)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		// Complete the oldest PROCESSING refund; the webhook is the source
		// of truth, a COMPLETED refund is never regressed.
		var refundID uuid.UUID
		var amount float64
		err = tx.QueryRowContext(ctx,
			`SELECT id, amount FROM refunds
			 WHERE payment_id = $1 AND status = $2
			 ORDER BY created_at LIMIT 1 FOR UPDATE`,
			paymentID, domain.RefundStatusProcessing).
			Scan(&refundID, &amount)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find processing refund: %w", err)
		}
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE refunds SET status = $1, gateway_refund_id = $2, updated_at = NOW() WHERE id = $3`,
				domain.RefundStatusCompleted, gatewayRefundID, refundID)
			if err != nil {
				return fmt.Errorf("complete refund from webhook: %w", err)
			}
			if err := insertLedgerEntry(ctx, tx, paymentID, refundID, amount); err != nil {
				return err
			}
		}

		status := domain.PaymentStatusPartiallyRefunded
		if refundedAmount >= paymentAmount {
			status = domain.PaymentStatusRefunded
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2`,
			status, paymentID)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// remainingRefundable locks the payment row and subtracts every COMPLETED
// and PROCESSING refund from the original amount.
func remainingRefundable(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (float64, error) {
	var paymentAmount float64
	err := tx.QueryRowContext(ctx,
		`SELECT amount FROM payments WHERE id = $1 FOR UPDATE`, paymentID).
		Scan(&paymentAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPaymentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock payment: %w", err)
	}

	var allocated float64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refunds
		 WHERE payment_id = $1 AND status IN ($2, $3)`,
		paymentID, domain.RefundStatusCompleted, domain.RefundStatusProcessing).
		Scan(&allocated)
	if err != nil {
		return 0, fmt.Errorf("sum allocated refunds: %w", err)
	}

	return paymentAmount - allocated, nil
}

// rollPaymentStatus recomputes the payment status from the sum of COMPLETED
// refunds. Runs after a refund completes, inside the same transaction.
func rollPaymentStatus(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) error {
	var paymentAmount, refunded float64
	err := tx.QueryRowContext(ctx,
		`SELECT p.amount, COALESCE(SUM(r.amount), 0)
		 FROM payments p
		 LEFT JOIN refunds r ON r.payment_id = p.id AND r.status = $1
		 WHERE p.id = $2
		 GROUP BY p.amount`,
		domain.RefundStatusCompleted, paymentID).
		Scan(&paymentAmount, &refunded)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("sum completed refunds: %w", err)
	}

	status := domain.PaymentStatusPartiallyRefunded
	if refunded >= paymentAmount {
		status = domain.PaymentStatusRefunded
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, paymentID)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, paymentID, refundID uuid.UUID, amount float64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (payment_id, refund_id, amount, entry_type, created_at)
		 VALUES ($1, $2, $3, 'refund', NOW())
		 ON CONFLICT (refund_id) DO NOTHING`,
		paymentID, refundID, amount)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefund(row rowScanner) (*domain.Refund, error) {
	var refund domain.Refund
	err := row.Scan(
		&refund.ID,
		&refund.PaymentID,
		&refund.Amount,
		&refund.Currency,
		&refund.Reason,
		&refund.Status,
		&refund.RequestedBy,
		&refund.ApprovedBy,
		&refund.GatewayRefundID,
		&refund.FailureReason,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &refund, nil
}
