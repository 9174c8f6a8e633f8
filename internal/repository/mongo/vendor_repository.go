package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
)

type VendorRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewVendorRepository(coll *mongo.Collection, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{coll: coll, logger: logger}
}

func (r *VendorRepository) Create(ctx context.Context, vendor *models.Vendor) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if vendor.ID.IsZero() {
		vendor.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, vendor); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

func (r *VendorRepository) FindByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *VendorRepository) FindByID(ctx context.Context, id string) (*models.Vendor, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// SetRefreshDigest replaces the stored refresh token digest, revoking the previous token.
func (r *VendorRepository) SetRefreshDigest(ctx context.Context, id, digest string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"refreshTokenDigest": digest,
		"lastLogin":          at,
		"updatedAt":          at,
	}})
	if err != nil {
		r.logger.Error("Failed to store vendor refresh digest", zap.String("vendor_id", id), zap.Error(err))
		return fmt.Errorf("failed to update vendor: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *VendorRepository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.EstimatedDocumentCount(ctx)
	return err
}

func (r *VendorRepository) findOne(ctx context.Context, filter bson.M) (*models.Vendor, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var vendor models.Vendor
	if err := r.coll.FindOne(ctx, filter).Decode(&vendor); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find vendor: %w", err)
	}
	return &vendor, nil
}
