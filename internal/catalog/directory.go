package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fjod/go_marketplace/internal/domain"
)

// MongoDirectory reads the platform's shop and coupon collections. The
// session manager resolves seller fan-out and coupons through it exactly
// once per session.
type MongoDirectory struct {
	shops   *mongo.Collection
	coupons *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		shops:   db.Collection("shops"),
		coupons: db.Collection("coupons"),
	}
}

type shopDoc struct {
	ShopID            string `bson:"shop_id"`
	SellerID          string `bson:"seller_id"`
	GatewayAccountRef string `bson:"gateway_account_ref"`
}

func (d *MongoDirectory) ResolveShop(ctx context.Context, shopID string) (domain.SellerFanout, error) {
	var doc shopDoc
	err := d.shops.FindOne(ctx, bson.M{"shop_id": shopID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SellerFanout{}, fmt.Errorf("%w: shop %s", domain.ErrNotFound, shopID)
	}
	if err != nil {
		return domain.SellerFanout{}, fmt.Errorf("failed to resolve shop %s: %w", shopID, err)
	}

	return domain.SellerFanout{
		ShopID:            doc.ShopID,
		SellerID:          doc.SellerID,
		GatewayAccountRef: doc.GatewayAccountRef,
	}, nil
}

type couponDoc struct {
	Code      string  `bson:"code"`
	Type      string  `bson:"type"`
	Value     float64 `bson:"value"`
	ProductID string  `bson:"product_id,omitempty"`
}

func (d *MongoDirectory) ResolveCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	var doc couponDoc
	err := d.coupons.FindOne(ctx, bson.M{"code": code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: coupon %s", domain.ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve coupon %s: %w", code, err)
	}

	return &domain.Coupon{
		Code:      doc.Code,
		Type:      domain.CouponType(doc.Type),
		Value:     doc.Value,
		ProductID: doc.ProductID,
	}, nil
}
