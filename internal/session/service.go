package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/store"
)

const (
	// SessionTTL bounds how long a pending session may wait for payment.
	SessionTTL = 20 * time.Minute

	sessionKeyPrefix     = "payment:session:"
	fingerprintKeyPrefix = "payment:fp:"
)

// SellerResolver resolves the seller routing info for a shop. Implemented by
// the shop/seller collaborator outside this service.
type SellerResolver interface {
	ResolveShop(ctx context.Context, shopID string) (domain.SellerFanout, error)
}

// CouponResolver resolves a coupon code once, at session-creation time.
// A miss returns domain.ErrNotFound.
type CouponResolver interface {
	ResolveCoupon(ctx context.Context, code string) (*domain.Coupon, error)
}

type Service struct {
	store   store.KVStore
	sellers SellerResolver
	coupons CouponResolver
	ttl     time.Duration
	sfg     singleflight.Group // collapses concurrent identical checkouts
}

func NewService(kv store.KVStore, sellers SellerResolver, coupons CouponResolver) *Service {
	return &Service{
		store:   kv,
		sellers: sellers,
		coupons: coupons,
		ttl:     SessionTTL,
	}
}

// Create starts (or resumes) a payment session for the buyer's cart.
// Re-submitting an identical cart before completion returns the existing
// session id; a changed cart invalidates the prior pending session.
func (s *Service) Create(ctx context.Context, buyerID string, cart []domain.CartLineSnapshot, addressID, couponCode string) (*domain.PaymentSession, error) {
	if err := validateCart(buyerID, cart); err != nil {
		return nil, err
	}

	fp, err := Fingerprint(cart)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.sfg.Do(buyerID+":"+fp, func() (interface{}, error) {
		return s.create(ctx, buyerID, fp, cart, addressID, couponCode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PaymentSession), nil
}

func (s *Service) create(ctx context.Context, buyerID, fp string, cart []domain.CartLineSnapshot, addressID, couponCode string) (*domain.PaymentSession, error) {
	// The fingerprint claim is the authority on whether this exact cart is
	// already mid-checkout.
	winner, err := s.claimedSession(ctx, buyerID, fp)
	if err != nil {
		return nil, err
	}
	s.invalidateStale(ctx, buyerID, fp)
	if winner != nil && winner.Status == domain.SessionStatusPending {
		return winner, nil
	}

	fanout, err := s.resolveFanout(ctx, cart)
	if err != nil {
		return nil, err
	}

	var coupon *domain.Coupon
	if couponCode != "" {
		coupon, err = s.coupons.ResolveCoupon(ctx, couponCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown coupon %q", domain.ErrValidation, couponCode)
			}
			return nil, fmt.Errorf("resolve coupon: %w", err)
		}
	}

	now := time.Now()
	sess := &domain.PaymentSession{
		ID:                uuid.NewString(),
		BuyerID:           buyerID,
		Cart:              cart,
		Fanout:            fanout,
		TotalAmount:       computeTotal(cart, coupon),
		Currency:          "USD",
		Coupon:            coupon,
		ShippingAddressID: addressID,
		Status:            domain.SessionStatusPending,
		Fingerprint:       fp,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
	}

	// The session is persisted before the (buyer, fingerprint) claim, so a
	// claim always points at a readable session. A losing concurrent creator
	// re-reads the winner by the claim's session id; a claim whose session is
	// gone is dead, never an in-flight write.
	if err := s.put(ctx, sess, s.ttl); err != nil {
		return nil, err
	}

	won, err := s.store.PutIfAbsent(ctx, fingerprintKey(buyerID, fp), []byte(sess.ID), s.ttl)
	if err != nil {
		return nil, err
	}
	if !won {
		winner, err := s.claimedSession(ctx, buyerID, fp)
		if err != nil {
			return nil, err
		}
		if winner != nil && winner.Status == domain.SessionStatusPending {
			// The concurrent creator won; discard our copy and return theirs.
			if dErr := s.store.Delete(ctx, sessionKey(buyerID, sess.ID)); dErr != nil {
				log.Printf("failed to discard duplicate session %s: %v", sess.ID, dErr)
			}
			return winner, nil
		}
		// The claim's session expired or settled; point the claim at ours.
		if err := s.store.Delete(ctx, fingerprintKey(buyerID, fp)); err != nil {
			return nil, err
		}
		if _, err := s.store.PutIfAbsent(ctx, fingerprintKey(buyerID, fp), []byte(sess.ID), s.ttl); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// claimedSession resolves the session the fingerprint claim points at, or nil
// when either the claim or its session is gone.
func (s *Service) claimedSession(ctx context.Context, buyerID, fp string) (*domain.PaymentSession, error) {
	data, err := s.store.Get(ctx, fingerprintKey(buyerID, fp))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess, err := s.Get(ctx, buyerID, string(data))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Verify returns session details for the checkout UI. A completed session is
// rejected so a paid session never leaks back to checkout.
func (s *Service) Verify(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error) {
	sess, err := s.Get(ctx, buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.SessionStatusCompleted {
		return nil, fmt.Errorf("%w: session %s is already completed", domain.ErrValidation, sessionID)
	}
	return sess, nil
}

func (s *Service) Get(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error) {
	data, err := s.store.Get(ctx, sessionKey(buyerID, sessionID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	var sess domain.PaymentSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Complete marks the session paid. Only the webhook dispatcher calls this;
// internal APIs never flip a session to completed directly.
func (s *Service) Complete(ctx context.Context, sess *domain.PaymentSession) error {
	sess.Status = domain.SessionStatusCompleted
	return s.put(ctx, sess, s.ttl)
}

func (s *Service) Fail(ctx context.Context, sess *domain.PaymentSession) error {
	sess.Status = domain.SessionStatusFailed
	return s.put(ctx, sess, s.ttl)
}

// Delete removes a session and its fingerprint claim. Called after
// materialization so a settled session is not replayable.
func (s *Service) Delete(ctx context.Context, sess *domain.PaymentSession) error {
	if err := s.store.Delete(ctx, fingerprintKey(sess.BuyerID, sess.Fingerprint)); err != nil {
		log.Printf("failed to delete fingerprint key for session %s: %v", sess.ID, err)
	}
	return s.store.Delete(ctx, sessionKey(sess.BuyerID, sess.ID))
}

// invalidateStale deletes the buyer's pending sessions for other carts; a
// changed cart abandons the prior checkout.
func (s *Service) invalidateStale(ctx context.Context, buyerID, fp string) {
	values, err := s.store.ScanPrefix(ctx, sessionKeyPrefix+buyerID+":")
	if err != nil {
		log.Printf("failed to scan sessions for buyer %s: %v", buyerID, err)
		return
	}

	for _, data := range values {
		var sess domain.PaymentSession
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Printf("skipping undecodable session for buyer %s: %v", buyerID, err)
			continue
		}
		if sess.Status != domain.SessionStatusPending || sess.Fingerprint == fp {
			continue
		}
		if err := s.Delete(ctx, &sess); err != nil {
			log.Printf("failed to invalidate stale session %s: %v", sess.ID, err)
		}
	}
}

func (s *Service) resolveFanout(ctx context.Context, cart []domain.CartLineSnapshot) ([]domain.SellerFanout, error) {
	seen := make(map[string]bool)
	var fanout []domain.SellerFanout
	for _, line := range cart {
		if seen[line.ShopID] {
			continue
		}
		seen[line.ShopID] = true

		f, err := s.sellers.ResolveShop(ctx, line.ShopID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown shop %q in cart", domain.ErrValidation, line.ShopID)
			}
			return nil, fmt.Errorf("resolve shop %s: %w", line.ShopID, err)
		}
		fanout = append(fanout, f)
	}
	return fanout, nil
}

func (s *Service) put(ctx context.Context, sess *domain.PaymentSession, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	return s.store.Put(ctx, sessionKey(sess.BuyerID, sess.ID), data, ttl)
}

func validateCart(buyerID string, cart []domain.CartLineSnapshot) error {
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is required", domain.ErrValidation)
	}
	if len(cart) == 0 {
		return fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	for _, line := range cart {
		if line.ProductID == "" || line.ShopID == "" {
			return fmt.Errorf("%w: cart line is missing product or shop id", domain.ErrValidation)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %s must be positive", domain.ErrValidation, line.ProductID)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: price for product %s must not be negative", domain.ErrValidation, line.ProductID)
		}
	}
	return nil
}

// computeTotal sums the cart net of a single coupon applied to at most one
// matching line. The deduction never drives a line total negative.
func computeTotal(cart []domain.CartLineSnapshot, coupon *domain.Coupon) float64 {
	var total float64
	applied := false
	for _, line := range cart {
		subtotal := line.Subtotal()
		if !applied {
			if discount := coupon.DiscountFor(line); discount > 0 {
				subtotal -= discount
				applied = true
			}
		}
		total += subtotal
	}
	return total
}

func sessionKey(buyerID, sessionID string) string {
	return sessionKeyPrefix + buyerID + ":" + sessionID
}

func fingerprintKey(buyerID, fp string) string {
	return fingerprintKeyPrefix + buyerID + ":" + fp
}
