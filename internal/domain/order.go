package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPaid OrderStatus = "PAID"
)

type OrderLine struct {
	ProductID       string   `json:"product_id"`
	Quantity        int32    `json:"quantity"`
	UnitPrice       float64  `json:"unit_price"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

// Order is one per (SessionID, ShopID) pair, owned exclusively by the
// materializer and immutable once created.
type Order struct {
	ID                uuid.UUID   `json:"id"`
	SessionID         string      `json:"session_id"`
	BuyerID           string      `json:"buyer_id"`
	ShopID            string      `json:"shop_id"`
	SellerID          string      `json:"seller_id"`
	Lines             []OrderLine `json:"lines"`
	TotalAmount       float64     `json:"total_amount"`
	Currency          string      `json:"currency"`
	Status            OrderStatus `json:"status"`
	ShippingAddressID string      `json:"shipping_address_id,omitempty"`
	CouponCode        string      `json:"coupon_code,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// MaterializationFailure is the structured record emitted when one shop group
// of a paid session cannot be materialized. Operators reconcile these by hand.
type MaterializationFailure struct {
	SessionID string    `json:"session_id"`
	ShopID    string    `json:"shop_id"`
	ProductID string    `json:"product_id,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}
