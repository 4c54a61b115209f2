package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/catalog"
	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/notify"
)

// SessionCloser removes a settled session so it cannot be replayed.
type SessionCloser interface {
	Delete(ctx context.Context, sess *domain.PaymentSession) error
}

// Materializer turns a completed payment session into one order per seller,
// with stock and analytics mutations applied exactly once per line.
type Materializer struct {
	repo     Repository
	stock    catalog.Store
	notifier notify.Notifier
	sessions SessionCloser
}

func NewMaterializer(repo Repository, stock catalog.Store, notifier notify.Notifier, sessions SessionCloser) *Materializer {
	return &Materializer{
		repo:     repo,
		stock:    stock,
		notifier: notifier,
		sessions: sessions,
	}
}

// Materialize processes every shop group of the session independently. A
// group that fails (stock underflow, storage error) is rolled back, recorded
// for operator reconciliation and skipped; the payment has already been
// captured for the whole cart, so the other groups still complete. The
// returned failures are informational - the caller has nothing to retry.
func (m *Materializer) Materialize(ctx context.Context, sess *domain.PaymentSession) []domain.MaterializationFailure {
	groups := groupByShop(sess.Cart)

	shopIDs := make([]string, 0, len(groups))
	for shopID := range groups {
		shopIDs = append(shopIDs, shopID)
	}
	sort.Strings(shopIDs)

	discountShop, discount := couponTarget(sess)

	var failures []domain.MaterializationFailure
	created := 0
	for _, shopID := range shopIDs {
		groupDiscount := 0.0
		if shopID == discountShop {
			groupDiscount = discount
		}

		failure := m.materializeGroup(ctx, sess, shopID, groups[shopID], groupDiscount)
		if failure != nil {
			failures = append(failures, *failure)
			m.reportFailure(ctx, *failure)
			continue
		}
		created++
	}

	if created > 0 {
		m.notify(ctx, domain.Notification{
			Title:      "Order confirmed",
			Message:    fmt.Sprintf("Your payment of %.2f %s was received and your order is confirmed.", sess.TotalAmount, sess.Currency),
			CreatorID:  domain.AdminChannel,
			ReceiverID: sess.BuyerID,
			Link:       "/orders",
		})
	}

	// The session has served its purpose and must not be replayable.
	if err := m.sessions.Delete(ctx, sess); err != nil {
		log.Printf("failed to delete settled session %s: %v", sess.ID, err)
	}

	return failures
}

// materializeGroup creates the order for one shop. Stock is decremented line
// by line with conditional atomic decrements; if any line fails, the earlier
// decrements of this group are compensated and the group is abandoned.
func (m *Materializer) materializeGroup(ctx context.Context, sess *domain.PaymentSession, shopID string, lines []domain.CartLineSnapshot, discount float64) *domain.MaterializationFailure {
	exists, err := m.repo.OrderExists(ctx, sess.ID, shopID)
	if err != nil {
		return m.failure(sess.ID, shopID, "", fmt.Sprintf("order existence check failed: %v", err))
	}
	if exists {
		return nil // already materialized, replay is a no-op
	}

	var decremented []domain.CartLineSnapshot
	for _, line := range lines {
		if err := m.stock.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			m.rollbackStock(ctx, decremented)
			if errors.Is(err, catalog.ErrInsufficientStock) {
				return m.failure(sess.ID, shopID, line.ProductID, "insufficient stock")
			}
			return m.failure(sess.ID, shopID, line.ProductID, fmt.Sprintf("stock decrement failed: %v", err))
		}
		decremented = append(decremented, line)
	}

	total := 0.0
	orderLines := make([]domain.OrderLine, len(lines))
	for i, line := range lines {
		total += line.Subtotal()
		orderLines[i] = domain.OrderLine{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			SelectedOptions: line.SelectedOptions,
		}
	}
	total -= discount

	fanout, _ := sess.FanoutFor(shopID)
	couponCode := ""
	if sess.Coupon != nil && discount > 0 {
		couponCode = sess.Coupon.Code
	}

	ord := &domain.Order{
		ID:                uuid.New(),
		SessionID:         sess.ID,
		BuyerID:           sess.BuyerID,
		ShopID:            shopID,
		SellerID:          fanout.SellerID,
		Lines:             orderLines,
		TotalAmount:       total,
		Currency:          sess.Currency,
		Status:            domain.OrderStatusPaid,
		ShippingAddressID: sess.ShippingAddressID,
		CouponCode:        couponCode,
	}

	if err := m.repo.CreateOrder(ctx, ord); err != nil {
		m.rollbackStock(ctx, decremented)
		if errors.Is(err, ErrDuplicateOrder) {
			// A concurrent materialization won; its decrements stand.
			return nil
		}
		return m.failure(sess.ID, shopID, "", fmt.Sprintf("order insert failed: %v", err))
	}

	for _, line := range lines {
		if err := m.stock.RecordProductPurchase(ctx, line.ProductID, line.Quantity); err != nil {
			log.Printf("failed to record purchase analytics for product %s: %v", line.ProductID, err)
		}
		if err := m.stock.AppendBuyerAction(ctx, sess.BuyerID, line.ProductID); err != nil {
			log.Printf("failed to append buyer action for %s: %v", sess.BuyerID, err)
		}
	}

	m.notify(ctx, domain.Notification{
		Title:      "New order",
		Message:    fmt.Sprintf("You received a new order of %.2f %s.", total, sess.Currency),
		CreatorID:  sess.BuyerID,
		ReceiverID: fanout.SellerID,
		Link:       "/seller/orders/" + ord.ID.String(),
	})
	m.notify(ctx, domain.Notification{
		Title:      "Order created",
		Message:    fmt.Sprintf("Order %s created for shop %s.", ord.ID, shopID),
		CreatorID:  sess.BuyerID,
		ReceiverID: domain.AdminChannel,
		Link:       "/admin/orders/" + ord.ID.String(),
	})

	return nil
}

func (m *Materializer) rollbackStock(ctx context.Context, lines []domain.CartLineSnapshot) {
	for _, line := range lines {
		if err := m.stock.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			log.Printf("failed to compensate stock for product %s: %v", line.ProductID, err)
		}
	}
}

func (m *Materializer) failure(sessionID, shopID, productID, reason string) *domain.MaterializationFailure {
	return &domain.MaterializationFailure{
		SessionID: sessionID,
		ShopID:    shopID,
		ProductID: productID,
		Reason:    reason,
		At:        time.Now(),
	}
}

// reportFailure surfaces a skipped shop group to operators: the payment for
// it was captured, so someone has to reconcile by hand.
func (m *Materializer) reportFailure(ctx context.Context, f domain.MaterializationFailure) {
	log.Printf("materialization failure: session=%s shop=%s product=%s reason=%s",
		f.SessionID, f.ShopID, f.ProductID, f.Reason)

	record, err := json.Marshal(f)
	if err != nil {
		log.Printf("failed to marshal materialization failure: %v", err)
		return
	}
	m.notify(ctx, domain.Notification{
		Title:      "Materialization failure",
		Message:    string(record),
		CreatorID:  "system",
		ReceiverID: domain.AdminChannel,
		Link:       "/admin/reconciliation",
	})
}

func (m *Materializer) notify(ctx context.Context, n domain.Notification) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		log.Printf("failed to enqueue notification for %s: %v", n.ReceiverID, err)
	}
}

func groupByShop(cart []domain.CartLineSnapshot) map[string][]domain.CartLineSnapshot {
	groups := make(map[string][]domain.CartLineSnapshot)
	for _, line := range cart {
		groups[line.ShopID] = append(groups[line.ShopID], line)
	}
	return groups
}

// couponTarget finds the shop whose group carries the session's coupon
// discount, matching the total computed at session-creation time: the first
// cart line the coupon matches.
func couponTarget(sess *domain.PaymentSession) (string, float64) {
	if sess.Coupon == nil {
		return "", 0
	}
	for _, line := range sess.Cart {
		if discount := sess.Coupon.DiscountFor(line); discount > 0 {
			return line.ShopID, discount
		}
	}
	return "", 0
}
