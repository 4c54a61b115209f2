package domain

type CouponType string

const (
	CouponTypePercentage CouponType = "PERCENTAGE"
	CouponTypeFixed      CouponType = "FIXED"
)

// Coupon is resolved once at session-creation time and stored on the session.
// It applies to at most one matching cart line.
type Coupon struct {
	Code      string     `json:"code"`
	Type      CouponType `json:"type"`
	Value     float64    `json:"value"`
	ProductID string     `json:"product_id,omitempty"`
}

// DiscountFor computes the deduction this coupon grants on a single line.
// The deduction never exceeds the line subtotal.
func (c *Coupon) DiscountFor(line CartLineSnapshot) float64 {
	if c == nil {
		return 0
	}
	if c.ProductID != "" && c.ProductID != line.ProductID {
		return 0
	}

	subtotal := line.Subtotal()
	var discount float64
	switch c.Type {
	case CouponTypePercentage:
		discount = subtotal * c.Value / 100
	case CouponTypeFixed:
		discount = c.Value
	}

	if discount > subtotal {
		return subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
