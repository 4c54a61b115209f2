package session

import (
	"context"
	"fmt"

	"github.com/fjod/go_marketplace/internal/domain"
)

type mockSellerResolver struct {
	shops map[string]domain.SellerFanout
}

func newMockSellerResolver(shopIDs ...string) *mockSellerResolver {
	shops := make(map[string]domain.SellerFanout, len(shopIDs))
	for _, id := range shopIDs {
		shops[id] = domain.SellerFanout{
			ShopID:            id,
			SellerID:          "seller-" + id,
			GatewayAccountRef: "acct_" + id,
		}
	}
	return &mockSellerResolver{shops: shops}
}

func (m *mockSellerResolver) ResolveShop(_ context.Context, shopID string) (domain.SellerFanout, error) {
	f, ok := m.shops[shopID]
	if !ok {
		return domain.SellerFanout{}, fmt.Errorf("%w: shop %s", domain.ErrNotFound, shopID)
	}
	return f, nil
}

type mockCouponResolver struct {
	coupons map[string]*domain.Coupon
}

func (m *mockCouponResolver) ResolveCoupon(_ context.Context, code string) (*domain.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, fmt.Errorf("%w: coupon %s", domain.ErrNotFound, code)
	}
	return c, nil
}
