package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
)

// OTPRepository is the otp_logs ledger.
type OTPRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewOTPRepository(coll *mongo.Collection, logger *zap.Logger) *OTPRepository {
	return &OTPRepository{coll: coll, logger: logger}
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (r *OTPRepository) Insert(ctx context.Context, rec *models.OTPRecord) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		r.logger.Error("Failed to insert OTP record",
			zap.String("identifier", identity.Mask(rec.Identifier)),
			zap.String("type", string(rec.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to insert otp record: %w", err)
	}
	return nil
}

func (r *OTPRepository) FindRecent(ctx context.Context, key models.LedgerKey, since time.Time) (*models.OTPRecord, error) {
	filter := bson.M{
		"rateKey":   key.Identifier,
		"type":      key.Type,
		"delivery":  bson.M{"$ne": models.DeliveryFailed},
		"createdAt": bson.M{"$gt": since},
	}
	return r.findNewest(ctx, filter)
}

func (r *OTPRepository) FindLatest(ctx context.Context, identifier string, types []models.OTPType) (*models.OTPRecord, error) {
	return r.findNewest(ctx, bson.M{
		"identifier": identifier,
		"type":       bson.M{"$in": types},
		"isVerified": false,
		"delivery":   models.DeliverySent,
	})
}

func (r *OTPRepository) MarkDelivery(ctx context.Context, id primitive.ObjectID, state models.DeliveryState, channel models.Channel, provider string, at time.Time) error {
	fields := bson.M{
		"delivery":  state,
		"channel":   channel,
		"provider":  provider,
		"updatedAt": at,
	}
	if state == models.DeliverySent {
		fields["sentAt"] = at
	}
	return r.setByID(ctx, id, fields)
}

// IncrementAttempts is a single $inc so concurrent wrong guesses are all counted.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id primitive.ObjectID, at time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var updated models.OTPRecord
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"attempts": 1}, "$set": bson.M{"updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return updated.Attempts, nil
}

func (r *OTPRepository) MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.setByID(ctx, id, bson.M{"isExpired": true, "updatedAt": at})
}

func (r *OTPRepository) MarkBlocked(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.setByID(ctx, id, bson.M{"isBlocked": true, "updatedAt": at})
}

// MarkVerified flips isVerified only if it is still false; false means another request won.
func (r *OTPRepository) MarkVerified(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "isVerified": false},
		bson.M{"$set": bson.M{"isVerified": true, "verifiedAt": at, "updatedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark otp verified: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, bson.M{
		"isVerified": false,
		"expiresAt":  bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp records: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *OTPRepository) FailStalePending(ctx context.Context, before, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateMany(ctx,
		bson.M{"delivery": models.DeliveryPending, "createdAt": bson.M{"$lt": before}},
		bson.M{"$set": bson.M{"delivery": models.DeliveryFailed, "updatedAt": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile pending otp records: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *OTPRepository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.EstimatedDocumentCount(ctx)
	return err
}

func (r *OTPRepository) findNewest(ctx context.Context, filter bson.M) (*models.OTPRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec models.OTPRecord
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find otp record: %w", err)
	}
	return &rec, nil
}

func (r *OTPRepository) setByID(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update otp record: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
