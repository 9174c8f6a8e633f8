package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
)

func TestUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate email maps to ErrDuplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: realbeez.users index: email_unique",
		}))
		repo := NewUserRepository(mt.Coll, zap.NewNop())

		err := repo.Create(context.Background(), &models.User{Email: "a@x.com", Name: "A"})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	mt.Run("create without contact is rejected", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, zap.NewNop())
		assert.Error(t, repo.Create(context.Background(), &models.User{Name: "A"}))
	})

	mt.Run("find by email", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "realbeez.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "email", Value: "a@x.com"},
			{Key: "name", Value: "A"},
			{Key: "isEmailVerified", Value: true},
		}))
		repo := NewUserRepository(mt.Coll, zap.NewNop())

		user, err := repo.FindByEmail(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.True(t, user.IsEmailVerified)
	})

	mt.Run("missing user maps to ErrNotFound", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "realbeez.users", mtest.FirstBatch))
		repo := NewUserRepository(mt.Coll, zap.NewNop())

		_, err := repo.FindByPhone(context.Background(), "+919876543210")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestOTPRepositoryMarkVerified(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("first update wins", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		repo := NewOTPRepository(mt.Coll, zap.NewNop())

		ok, err := repo.MarkVerified(context.Background(), primitive.NewObjectID(), time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	mt.Run("already verified", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		repo := NewOTPRepository(mt.Coll, zap.NewNop())

		ok, err := repo.MarkVerified(context.Background(), primitive.NewObjectID(), time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOTPRepositoryFindLatestNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("empty cursor", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "realbeez.otp_logs", mtest.FirstBatch))
		repo := NewOTPRepository(mt.Coll, zap.NewNop())

		_, err := repo.FindLatest(context.Background(), "+919876543210", []models.OTPType{models.OTPTypeSMS})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestOTPRepositoryFindRecentFiltersByRateKey(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("purpose is not part of the filter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "realbeez.otp_logs", mtest.FirstBatch))
		repo := NewOTPRepository(mt.Coll, zap.NewNop())

		key := models.LedgerKey{Identifier: "owner@x.com", Type: models.OTPTypeEmailVerification, Purpose: models.PurposePasswordReset}
		_, err := repo.FindRecent(context.Background(), key, time.Now().Add(-30*time.Second))
		assert.ErrorIs(t, err, repository.ErrNotFound)

		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		assert.Equal(t, "owner@x.com", filter.Lookup("rateKey").StringValue())
		assert.Equal(t, string(models.OTPTypeEmailVerification), filter.Lookup("type").StringValue())
		_, err = filter.LookupErr("purpose")
		assert.Error(t, err)
		_, err = filter.LookupErr("identifier")
		assert.Error(t, err)
	})
}
