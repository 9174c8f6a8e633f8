package otp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.OTPConfig {
	return config.OTPConfig{
		TTL:              10 * time.Minute,
		PasswordResetTTL: 15 * time.Minute,
		RateWindow:       30 * time.Second,
		MaxAttempts:      5,
		PendingTimeout:   2 * time.Minute,
		SweepGrace:       time.Minute,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.OTPLedger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	ledger := memory.NewOTPLedger()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEngine(ledger, testConfig(), zap.NewNop(), opts...), ledger, clock
}

func delivered(ctx context.Context, code string) (Delivery, error) {
	return Delivery{Channel: models.ChannelEmail, Provider: "test"}, nil
}

func phoneRequest() IssueRequest {
	return IssueRequest{
		Identifier: identity.Phone("+919876543210"),
		Type:       models.OTPTypeSMS,
		Purpose:    models.PurposePhoneVerification,
	}
}

func TestGenerateCodeRange(t *testing.T) {
	for range 2000 {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestIssueRateLimitsWithinWindow(t *testing.T) {
	ctx := context.Background()
	engine, ledger, clock := newTestEngine(t)

	issued, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, issued.Record.Delivery)
	assert.Equal(t, clock.Now().Add(10*time.Minute), issued.Record.ExpiresAt)

	clock.Advance(10 * time.Second)
	_, err = engine.Issue(ctx, phoneRequest(), delivered)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, ledger.All(), 1)

	clock.Advance(21 * time.Second)
	_, err = engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)
	assert.Len(t, ledger.All(), 2)
}

func TestIssueRateLimitSpansPurposes(t *testing.T) {
	ctx := context.Background()
	clockNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, opts := range map[string][]Option{
		"ledger only":   nil,
		"with cooldown": {WithCooldown(memory.NewCooldown(func() time.Time { return clockNow }))},
	} {
		t.Run(name, func(t *testing.T) {
			engine, ledger, clock := newTestEngine(t, opts...)
			req := IssueRequest{
				Identifier: identity.Email("owner@x.com"),
				Type:       models.OTPTypeEmailVerification,
				Purpose:    models.PurposeLogin,
			}
			_, err := engine.Issue(ctx, req, delivered)
			require.NoError(t, err)

			for _, purpose := range []models.Purpose{models.PurposeVerifyEmail, models.PurposePasswordReset} {
				clock.Advance(time.Second)
				req.Purpose = purpose
				_, err = engine.Issue(ctx, req, delivered)
				assert.ErrorIs(t, err, ErrRateLimited, string(purpose))
			}
			assert.Len(t, ledger.All(), 1)
		})
	}
}

func TestIssueCooldownClosesConcurrentRace(t *testing.T) {
	ctx := context.Background()
	clockNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, ledger, _ := newTestEngine(t, WithCooldown(memory.NewCooldown(func() time.Time { return clockNow })))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Issue(ctx, phoneRequest(), delivered)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrRateLimited)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, ledger.All(), 1)
}

func TestIssuePasswordResetTTL(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	issued, err := engine.Issue(context.Background(), IssueRequest{
		Identifier: identity.Email("a@x.com"),
		Type:       models.OTPTypeEmailVerification,
		Purpose:    models.PurposePasswordReset,
	}, delivered)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), issued.Record.ExpiresAt)
}

func TestIssueDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newTestEngine(t, WithCooldown(memory.NewCooldown(nil)))

	failing := func(context.Context, string) (Delivery, error) {
		return Delivery{Channel: models.ChannelSMS}, errors.New("provider down")
	}
	_, err := engine.Issue(ctx, phoneRequest(), failing)
	require.ErrorIs(t, err, ErrDeliveryFailed)

	records := ledger.All()
	require.Len(t, records, 1)
	assert.Equal(t, models.DeliveryFailed, records[0].Delivery)

	_, err = engine.Verify(ctx, records[0].Identifier, records[0].Code, models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPInvalid)

	// The window and cooldown are released.
	_, err = engine.Issue(ctx, phoneRequest(), delivered)
	assert.NoError(t, err)
}

func TestVerifyExactlyOnce(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newTestEngine(t)

	issued, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)

	rec, err := engine.Verify(ctx, "+919876543210", issued.Code, models.OTPTypeSMS)
	require.NoError(t, err)
	assert.True(t, rec.IsVerified)

	_, err = engine.Verify(ctx, "+919876543210", issued.Code, models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPInvalid)

	stored, ok := ledger.Get(issued.Record.ID)
	require.True(t, ok)
	assert.True(t, stored.IsVerified)
	require.NotNil(t, stored.VerifiedAt)
}

func TestVerifyWrongCodeBlocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newTestEngine(t, WithCodeGenerator(func() (string, error) { return "123456", nil }))

	issued, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := engine.Verify(ctx, "+919876543210", "000000", models.OTPTypeSMS)
		require.ErrorIs(t, err, ErrOTPInvalid)
		remaining, ok := RemainingAttempts(err)
		require.True(t, ok)
		assert.Equal(t, 5-i, remaining)
	}

	stored, _ := ledger.Get(issued.Record.ID)
	assert.Equal(t, 5, stored.Attempts)
	assert.True(t, stored.IsBlocked)

	_, err = engine.Verify(ctx, "+919876543210", "123456", models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPBlocked)

	stored, _ = ledger.Get(issued.Record.ID)
	assert.False(t, stored.IsVerified)
	assert.Equal(t, 5, stored.Attempts)
}

func TestVerifyAfterExpiry(t *testing.T) {
	ctx := context.Background()
	engine, ledger, clock := newTestEngine(t)

	issued, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)

	clock.Advance(10*time.Minute + time.Second)
	_, err = engine.Verify(ctx, "+919876543210", issued.Code, models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPExpired)

	stored, _ := ledger.Get(issued.Record.ID)
	assert.True(t, stored.IsExpired)
	assert.False(t, stored.IsVerified)

	_, err = engine.Verify(ctx, "+919876543210", issued.Code, models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyUnknownIdentifier(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Verify(context.Background(), "+919999999999", "123456", models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPInvalid)
	_, ok := RemainingAttempts(err)
	assert.False(t, ok)
}

func TestVerifyUsesNewestRecord(t *testing.T) {
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	engine, _, clock := newTestEngine(t, WithCodeGenerator(func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}))

	_, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)
	clock.Advance(31 * time.Second)
	_, err = engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)

	_, err = engine.Verify(ctx, "+919876543210", "111111", models.OTPTypeSMS)
	assert.ErrorIs(t, err, ErrOTPInvalid)
	_, err = engine.Verify(ctx, "+919876543210", "222222", models.OTPTypeSMS)
	assert.NoError(t, err)
}

func TestGrantConsumeOnce(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t)

	rec, err := engine.Grant(ctx, GrantRequest{
		Identifier: identity.Token("reset-token"),
		Type:       models.OTPTypePasswordReset,
		Purpose:    models.PurposePasswordReset,
		UserID:     "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), rec.ExpiresAt)

	_, err = engine.Verify(ctx, "reset-token", "", models.OTPTypePasswordReset)
	assert.ErrorIs(t, err, ErrOTPInvalid)

	got, err := engine.Consume(ctx, "reset-token", models.OTPTypePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = engine.Consume(ctx, "reset-token", models.OTPTypePasswordReset)
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestConsumeExpiredGrant(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t)

	_, err := engine.Grant(ctx, GrantRequest{
		Identifier: identity.Token("reset-token"),
		Type:       models.OTPTypePasswordReset,
		Purpose:    models.PurposePasswordReset,
	})
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = engine.Consume(ctx, "reset-token", models.OTPTypePasswordReset)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestSweepDeletesExpiredAndReconcilesPending(t *testing.T) {
	ctx := context.Background()
	engine, ledger, clock := newTestEngine(t)

	issued, err := engine.Issue(ctx, phoneRequest(), delivered)
	require.NoError(t, err)

	hanging := &models.OTPRecord{
		Identifier: "a@x.com",
		Code:       "123456",
		Type:       models.OTPTypeLogin,
		Delivery:   models.DeliveryPending,
		CreatedAt:  clock.Now(),
		ExpiresAt:  clock.Now().Add(time.Hour),
	}
	require.NoError(t, ledger.Insert(ctx, hanging))

	clock.Advance(3 * time.Minute)
	res, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Deleted: 0, Failed: 1}, res)

	stale, _ := ledger.Get(hanging.ID)
	assert.Equal(t, models.DeliveryFailed, stale.Delivery)

	// Within the grace period the expired row is kept so verify can report it.
	clock.Advance(7*time.Minute + 30*time.Second)
	res, err = engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)

	clock.Advance(time.Minute)
	res, err = engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	_, ok := ledger.Get(issued.Record.ID)
	assert.False(t, ok)
}
