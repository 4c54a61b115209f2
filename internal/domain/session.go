package domain

import "time"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusExpired
}

func (s SessionStatus) String() string {
	return string(s)
}

// CartLineSnapshot is a cart line with the price captured at session-creation
// time. Prices are never re-read from the catalog after this point.
type CartLineSnapshot struct {
	ProductID       string   `json:"product_id"`
	ShopID          string   `json:"shop_id"`
	Quantity        int32    `json:"quantity"`
	UnitPrice       float64  `json:"unit_price"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

func (l CartLineSnapshot) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// SellerFanout carries the seller routing info for one shop, resolved once at
// session-creation time so materialization never re-queries seller state.
type SellerFanout struct {
	ShopID            string `json:"shop_id"`
	SellerID          string `json:"seller_id"`
	GatewayAccountRef string `json:"gateway_account_ref"`
}

// PaymentSession is the full checkout state between "buyer pressed pay" and
// "a verified webhook settled the payment". Identity is (BuyerID, ID).
type PaymentSession struct {
	ID                string             `json:"id"`
	BuyerID           string             `json:"buyer_id"`
	Cart              []CartLineSnapshot `json:"cart"`
	Fanout            []SellerFanout     `json:"fanout"`
	TotalAmount       float64            `json:"total_amount"`
	Currency          string             `json:"currency"`
	Coupon            *Coupon            `json:"coupon,omitempty"`
	ShippingAddressID string             `json:"shipping_address_id,omitempty"`
	Status            SessionStatus      `json:"status"`
	Fingerprint       string             `json:"fingerprint"`
	CreatedAt         time.Time          `json:"created_at"`
	ExpiresAt         time.Time          `json:"expires_at"`
}

// FanoutFor returns the seller routing for a shop in this session.
func (s *PaymentSession) FanoutFor(shopID string) (SellerFanout, bool) {
	for _, f := range s.Fanout {
		if f.ShopID == shopID {
			return f, true
		}
	}
	return SellerFanout{}, false
}
