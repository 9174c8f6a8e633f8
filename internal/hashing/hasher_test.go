package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-auth/internal/config"
)

func TestPasswordHashing(t *testing.T) {
	h := NewHasher(&config.Config{Auth: config.AuthConfig{BcryptCost: 4}})

	hash, err := h.HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	assert.NoError(t, h.VerifyPassword(hash, "secret1"))
	assert.ErrorIs(t, h.VerifyPassword(hash, "secret2"), ErrMismatch)
	assert.Error(t, h.VerifyPassword("not-a-hash", "secret1"))
}

func TestTokenDigest(t *testing.T) {
	d := TokenDigest("token")
	assert.Len(t, d, 64)
	assert.True(t, EqualDigest(d, TokenDigest("token")))
	assert.False(t, EqualDigest(d, TokenDigest("other")))
}
