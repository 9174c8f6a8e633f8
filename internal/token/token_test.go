package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/models"
)

func testIssuer() *Issuer {
	return NewIssuer(config.JWTConfig{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "marketplace-auth",
		SessionTTL:    7 * 24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

func TestAccessRoundTrip(t *testing.T) {
	issuer := testIssuer()
	user := &models.User{ID: primitive.NewObjectID(), Email: "a@x.com", Name: "A", Role: models.RoleUser, IsEmailVerified: true}

	raw, err := issuer.Access(UserClaims(user), issuer.SessionTTL(true))
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.ID)
	assert.True(t, claims.IsEmailVerified)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestRefreshUsesSeparateSecret(t *testing.T) {
	issuer := testIssuer()

	refresh, err := issuer.Refresh("u1")
	require.NoError(t, err)
	_, err = issuer.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := issuer.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ID)
}

func TestExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := testIssuer().WithClock(func() time.Time { return past })

	raw, err := issuer.Access(Claims{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	_, err = testIssuer().ParseAccess(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOpaqueTokensAreUnique(t *testing.T) {
	assert.NotEqual(t, Opaque(), Opaque())
	assert.Len(t, Opaque(), 36)
}
