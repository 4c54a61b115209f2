package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// buyerActionCap bounds the per-buyer activity log; older entries roll off.
const buyerActionCap = 100

type mongoStore struct {
	products  *mongo.Collection
	analytics *mongo.Collection
	buyers    *mongo.Collection
}

func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{
		products:  db.Collection("products"),
		analytics: db.Collection("product_analytics"),
		buyers:    db.Collection("buyer_activity"),
	}
}

func (m *mongoStore) DecrementStock(ctx context.Context, productID string, qty int32) error {
	// The stock >= qty filter makes the decrement conditional: a concurrent
	// purchase that would drive stock negative simply does not match.
	filter := bson.M{
		"product_id": productID,
		"stock":      bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"stock": -qty, "total_sold": qty},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %s: %w", productID, err)
	}
	if result.MatchedCount == 0 {
		exists, err := m.productExists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

func (m *mongoStore) IncrementStock(ctx context.Context, productID string, qty int32) error {
	filter := bson.M{"product_id": productID}
	update := bson.M{
		"$inc": bson.M{"stock": qty, "total_sold": -qty},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to increment stock for product %s: %w", productID, err)
	}
	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (m *mongoStore) RecordProductPurchase(ctx context.Context, productID string, qty int32) error {
	filter := bson.M{"product_id": productID}
	update := bson.M{
		"$inc": bson.M{"purchase_count": qty},
		"$set": bson.M{"last_purchase_at": time.Now()},
		"$setOnInsert": bson.M{
			"product_id": productID,
			"created_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.analytics.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to record purchase for product %s: %w", productID, err)
	}
	return nil
}

func (m *mongoStore) AppendBuyerAction(ctx context.Context, buyerID, productID string) error {
	filter := bson.M{"buyer_id": buyerID}
	update := bson.M{
		"$push": bson.M{
			"actions": bson.M{
				"$each": bson.A{bson.M{
					"type":       "purchase",
					"product_id": productID,
					"at":         time.Now(),
				}},
				"$slice": -buyerActionCap,
			},
		},
		"$set":         bson.M{"updated_at": time.Now()},
		"$setOnInsert": bson.M{"buyer_id": buyerID, "created_at": time.Now()},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.buyers.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to append buyer action for %s: %w", buyerID, err)
	}
	return nil
}

func (m *mongoStore) productExists(ctx context.Context, productID string) (bool, error) {
	err := m.products.FindOne(ctx, bson.M{"product_id": productID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check product %s: %w", productID, err)
	}
	return true, nil
}
