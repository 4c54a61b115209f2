package order

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/catalog"
	"github.com/fjod/go_marketplace/internal/domain"
)

type memoryRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order // keyed session:shop
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{orders: make(map[string]*domain.Order)}
}

func (r *memoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := order.SessionID + ":" + order.ShopID
	if _, ok := r.orders[key]; ok {
		return ErrDuplicateOrder
	}
	r.orders[key] = order
	return nil
}

func (r *memoryRepository) OrderExists(_ context.Context, sessionID, shopID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orders[sessionID+":"+shopID]
	return ok, nil
}

func (r *memoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *memoryRepository) ListOrdersByBuyer(_ context.Context, buyerID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepository) RunMigrations(*Credentials) error { return nil }
func (r *memoryRepository) Close() error                     { return nil }

func (r *memoryRepository) orderFor(sessionID, shopID string) *domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[sessionID+":"+shopID]
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type memoryStock struct {
	mu        sync.Mutex
	stock     map[string]int32
	purchases map[string]int32
	actions   map[string][]string
}

func newMemoryStock(stock map[string]int32) *memoryStock {
	return &memoryStock{
		stock:     stock,
		purchases: make(map[string]int32),
		actions:   make(map[string][]string),
	}
}

func (s *memoryStock) DecrementStock(_ context.Context, productID string, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.stock[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if current < qty {
		return catalog.ErrInsufficientStock
	}
	s.stock[productID] = current - qty
	return nil
}

func (s *memoryStock) IncrementStock(_ context.Context, productID string, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] += qty
	return nil
}

func (s *memoryStock) RecordProductPurchase(_ context.Context, productID string, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[productID] += qty
	return nil
}

func (s *memoryStock) AppendBuyerAction(_ context.Context, buyerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[buyerID] = append(s.actions[buyerID], productID)
	return nil
}

func (s *memoryStock) level(productID string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) to(receiverID string) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, sent := range n.sent {
		if sent.ReceiverID == receiverID {
			out = append(out, sent)
		}
	}
	return out
}

type recordingCloser struct {
	mu      sync.Mutex
	deleted []string
}

func (c *recordingCloser) Delete(_ context.Context, sess *domain.PaymentSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, sess.ID)
	return nil
}
