package memory

import (
	"context"
	"testing"
	"time"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()

	require.NoError(t, store.Create(ctx, &models.User{Email: "a@x.com", Phone: "+919876543210", Name: "A"}))
	assert.ErrorIs(t, store.Create(ctx, &models.User{Email: "a@x.com", Name: "B"}), repository.ErrDuplicate)
	assert.ErrorIs(t, store.Create(ctx, &models.User{Phone: "+919876543210", Name: "C"}), repository.ErrDuplicate)
	assert.NoError(t, store.Create(ctx, &models.User{Phone: "+919999999999", Name: "D"}))
}

func TestUserStoreUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	user := &models.User{Email: "a@x.com", Name: "A"}
	require.NoError(t, store.Create(ctx, user))

	now := time.Now()
	id := user.ID.Hex()
	require.NoError(t, store.MarkEmailVerified(ctx, id, now))
	require.NoError(t, store.TouchLogin(ctx, id, now))
	require.NoError(t, store.UpdatePassword(ctx, id, "hash", now))

	got, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)
	assert.Equal(t, "hash", got.PasswordHash)
	require.NotNil(t, got.LastLogin)

	_, err = store.FindByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.FindByPhone(ctx, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestVendorStoreRefreshDigest(t *testing.T) {
	ctx := context.Background()
	store := NewVendorStore()
	vendor := &models.Vendor{Email: "v@x.com", PasswordHash: "h"}
	require.NoError(t, store.Create(ctx, vendor))

	require.NoError(t, store.SetRefreshDigest(ctx, vendor.ID.Hex(), "digest", time.Now()))
	got, err := store.FindByID(ctx, vendor.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "digest", got.RefreshTokenDigest)
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cd := NewCooldown(func() time.Time { return now })

	ok, err := cd.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = cd.Acquire(ctx, "k", 30*time.Second)
	assert.False(t, ok)

	now = now.Add(31 * time.Second)
	ok, _ = cd.Acquire(ctx, "k", 30*time.Second)
	assert.True(t, ok)

	require.NoError(t, cd.Release(ctx, "k"))
	ok, _ = cd.Acquire(ctx, "k", 30*time.Second)
	assert.True(t, ok)
}
