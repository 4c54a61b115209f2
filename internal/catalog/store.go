package catalog

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Store mutates product stock and purchase analytics. Stock changes are
// conditional atomic operations, never read-then-write.
type Store interface {
	// DecrementStock applies stock -= qty, totalSold += qty only when
	// stock >= qty, and reports ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, productID string, qty int32) error
	// IncrementStock compensates a decrement when a shop group fails
	// partway through materialization.
	IncrementStock(ctx context.Context, productID string, qty int32) error
	// RecordProductPurchase upserts the per-product purchase aggregate.
	RecordProductPurchase(ctx context.Context, productID string, qty int32) error
	// AppendBuyerAction appends a "purchase" action to the buyer's capped
	// activity log.
	AppendBuyerAction(ctx context.Context, buyerID, productID string) error
}
