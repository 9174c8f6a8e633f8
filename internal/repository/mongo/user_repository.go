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

	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
)

var errNoContact = errors.New("user requires an email or a phone")

type UserRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewUserRepository(coll *mongo.Collection, logger *zap.Logger) *UserRepository {
	return &UserRepository{coll: coll, logger: logger}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if !user.HasContact() {
		return errNoContact
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		r.logger.Error("Failed to create user",
			zap.String("email", identity.Mask(user.Email)),
			zap.String("phone", identity.Mask(user.Phone)),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"lastLogin": at, "updatedAt": at})
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"isEmailVerified": true, "updatedAt": at})
}

func (r *UserRepository) MarkPhoneVerified(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"isPhoneVerified": true, "updatedAt": at})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return r.set(ctx, id, bson.M{"password": passwordHash, "updatedAt": at})
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.EstimatedDocumentCount(ctx)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) set(ctx context.Context, id string, fields bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
