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

func sentRecord(identifier string, typ models.OTPType, created time.Time) *models.OTPRecord {
	return &models.OTPRecord{
		Identifier: identifier,
		Code:       "123456",
		Type:       typ,
		Purpose:    models.PurposeLogin,
		Delivery:   models.DeliverySent,
		CreatedAt:  created,
		ExpiresAt:  created.Add(10 * time.Minute),
	}
}

func TestOTPLedgerFindLatestPrefersNewest(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	older := sentRecord("a@x.com", models.OTPTypeLogin, now)
	newer := sentRecord("a@x.com", models.OTPTypeLogin, now)
	require.NoError(t, ledger.Insert(ctx, older))
	require.NoError(t, ledger.Insert(ctx, newer))

	got, err := ledger.FindLatest(ctx, "a@x.com", []models.OTPType{models.OTPTypeLogin})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	_, err = ledger.FindLatest(ctx, "a@x.com", []models.OTPType{models.OTPTypeSMS})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOTPLedgerFindLatestSkipsUndelivered(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	now := time.Now()

	rec := sentRecord("9876543210", models.OTPTypeSMS, now)
	rec.Delivery = models.DeliveryPending
	require.NoError(t, ledger.Insert(ctx, rec))

	_, err := ledger.FindLatest(ctx, rec.Identifier, []models.OTPType{models.OTPTypeSMS})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, ledger.MarkDelivery(ctx, rec.ID, models.DeliverySent, models.ChannelSMS, "simulated", now))
	got, err := ledger.FindLatest(ctx, rec.Identifier, []models.OTPType{models.OTPTypeSMS})
	require.NoError(t, err)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, models.ChannelSMS, got.Channel)
}

func TestOTPLedgerFindRecentIgnoresFailed(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	now := time.Now()

	rec := sentRecord("a@x.com", models.OTPTypeLogin, now)
	rec.Delivery = models.DeliveryFailed
	require.NoError(t, ledger.Insert(ctx, rec))

	_, err := ledger.FindRecent(ctx, rec.Key(), now.Add(-30*time.Second))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOTPLedgerFindRecentIgnoresPurpose(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	now := time.Now()

	rec := sentRecord("a@x.com", models.OTPTypeEmailVerification, now)
	require.NoError(t, ledger.Insert(ctx, rec))

	key := models.LedgerKey{Identifier: "a@x.com", Type: models.OTPTypeEmailVerification, Purpose: models.PurposePasswordReset}
	got, err := ledger.FindRecent(ctx, key, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestOTPLedgerMarkVerifiedOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	rec := sentRecord("a@x.com", models.OTPTypeLogin, time.Now())
	require.NoError(t, ledger.Insert(ctx, rec))

	ok, err := ledger.MarkVerified(ctx, rec.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.MarkVerified(ctx, rec.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPLedgerSweep(t *testing.T) {
	ctx := context.Background()
	ledger := NewOTPLedger()
	now := time.Now()

	expired := sentRecord("old@x.com", models.OTPTypeLogin, now.Add(-time.Hour))
	stale := sentRecord("stale@x.com", models.OTPTypeLogin, now.Add(-5*time.Minute))
	stale.Delivery = models.DeliveryPending
	live := sentRecord("live@x.com", models.OTPTypeLogin, now)
	for _, rec := range []*models.OTPRecord{expired, stale, live} {
		require.NoError(t, ledger.Insert(ctx, rec))
	}

	deleted, err := ledger.DeleteExpired(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	failed, err := ledger.FailStalePending(ctx, now.Add(-2*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	got, ok := ledger.Get(stale.ID)
	require.True(t, ok)
	assert.Equal(t, models.DeliveryFailed, got.Delivery)
	assert.Len(t, ledger.All(), 2)
}
