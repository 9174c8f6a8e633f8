// Package mongo persists users, OTP records and vendors in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// EnsureIndexes creates the unique contact indexes, the ledger lookup index and the advisory TTL index.
func EnsureIndexes(ctx context.Context, users, otps, vendors *mongo.Collection, ttlSeconds int32) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("phone_unique").SetUnique(true).SetSparse(true),
		},
	}
	if _, err := users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	otpIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}, {Key: "type", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("identifier_type_created"),
		},
		{
			Keys:    bson.D{{Key: "rateKey", Value: 1}, {Key: "type", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("ratekey_type_created"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expires_ttl").SetExpireAfterSeconds(ttlSeconds),
		},
		{
			Keys:    bson.D{{Key: "delivery", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("delivery_created"),
		},
	}
	if _, err := otps.Indexes().CreateMany(ctx, otpIndexes); err != nil {
		return fmt.Errorf("failed to create otp indexes: %w", err)
	}

	vendorIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("vendor_email_unique").SetUnique(true),
	}
	if _, err := vendors.Indexes().CreateOne(ctx, vendorIndex); err != nil {
		return fmt.Errorf("failed to create vendor index: %w", err)
	}
	return nil
}
