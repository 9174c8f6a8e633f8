// Package otp issues, verifies and expires one-time codes against the OTP ledger.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
)

// Ledger is the persistent record of issued codes.
type Ledger interface {
	Insert(ctx context.Context, rec *models.OTPRecord) error
	FindRecent(ctx context.Context, key models.LedgerKey, since time.Time) (*models.OTPRecord, error)
	FindLatest(ctx context.Context, identifier string, types []models.OTPType) (*models.OTPRecord, error)
	MarkDelivery(ctx context.Context, id primitive.ObjectID, state models.DeliveryState, channel models.Channel, provider string, at time.Time) error
	IncrementAttempts(ctx context.Context, id primitive.ObjectID, at time.Time) (int, error)
	MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) error
	MarkBlocked(ctx context.Context, id primitive.ObjectID, at time.Time) error
	MarkVerified(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	FailStalePending(ctx context.Context, before, at time.Time) (int64, error)
}

// Cooldown is a TTL lock held for the resend window.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Delivery describes where a code went.
type Delivery struct {
	Channel   models.Channel
	Provider  string
	Simulated bool
}

// DeliverFunc sends code through exactly one route chosen by the caller.
type DeliverFunc func(ctx context.Context, code string) (Delivery, error)

type IssueRequest struct {
	Identifier identity.Identifier
	Type       models.OTPType
	Purpose    models.Purpose
	UserID     string
	UserEmail  string
	UserName   string
	UserPhone  string
	Metadata   models.OTPMetadata
	// RateKey throttles by a value other than Identifier, such as the contact behind a registration token.
	RateKey string
}

type Issued struct {
	Record   *models.OTPRecord
	Code     string
	Delivery Delivery
}

type GrantRequest struct {
	Identifier identity.Identifier
	Type       models.OTPType
	Purpose    models.Purpose
	UserID     string
	UserEmail  string
}

type SweepResult struct {
	Deleted int64
	Failed  int64
}

type Engine struct {
	ledger   Ledger
	cooldown Cooldown
	cfg      config.OTPConfig
	now      func() time.Time
	newCode  func() (string, error)
	logger   *zap.Logger
}

type Option func(*Engine)

func WithCooldown(c Cooldown) Option {
	return func(e *Engine) { e.cooldown = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.newCode = gen }
}

func NewEngine(ledger Ledger, cfg config.OTPConfig, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		ledger:  ledger,
		cfg:     cfg,
		now:     time.Now,
		newCode: GenerateCode,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// cooldownKey ignores purpose: one live code per identifier and type.
func cooldownKey(key models.LedgerKey) string {
	return fmt.Sprintf("%s:%s", key.Type, key.Identifier)
}

// Issue rate-limits, persists a pending record, delivers the code and records the outcome.
func (e *Engine) Issue(ctx context.Context, req IssueRequest, deliver DeliverFunc) (*Issued, error) {
	now := e.now().UTC()
	rateKey := req.RateKey
	if rateKey == "" {
		rateKey = req.Identifier.Value
	}
	key := models.LedgerKey{Identifier: rateKey, Type: req.Type, Purpose: req.Purpose}
	log := e.logger.With(
		zap.String("identifier", req.Identifier.Masked()),
		zap.String("type", string(req.Type)),
		zap.String("purpose", string(req.Purpose)))

	held, err := e.acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	recent, err := e.ledger.FindRecent(ctx, key, now.Add(-e.cfg.RateWindow))
	switch {
	case err == nil && recent != nil:
		if held {
			e.release(ctx, key)
		}
		metrics.OTPRateLimited.WithLabelValues(string(req.Type)).Inc()
		return nil, ErrRateLimited
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		if held {
			e.release(ctx, key)
		}
		return nil, fmt.Errorf("rate limit lookup: %w", err)
	}

	code, err := e.newCode()
	if err != nil {
		if held {
			e.release(ctx, key)
		}
		return nil, err
	}

	rec := &models.OTPRecord{
		Identifier:     req.Identifier.Value,
		RateKey:        rateKey,
		IdentifierKind: req.Identifier.Kind,
		Code:           code,
		Type:           req.Type,
		Purpose:        req.Purpose,
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		UserName:       req.UserName,
		UserPhone:      req.UserPhone,
		Delivery:       models.DeliveryPending,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(e.ttlFor(req.Type, req.Purpose)),
	}
	if err := e.ledger.Insert(ctx, rec); err != nil {
		if held {
			e.release(ctx, key)
		}
		return nil, err
	}

	delivery, sendErr := deliver(ctx, code)
	at := e.now().UTC()
	if sendErr != nil {
		if err := e.ledger.MarkDelivery(ctx, rec.ID, models.DeliveryFailed, delivery.Channel, delivery.Provider, at); err != nil {
			log.Error("Failed to mark OTP delivery failed", zap.Error(err))
		}
		if held {
			e.release(ctx, key)
		}
		metrics.OTPDeliveryFailures.WithLabelValues(string(req.Type)).Inc()
		log.Warn("OTP delivery failed", zap.Error(sendErr))
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}

	if err := e.ledger.MarkDelivery(ctx, rec.ID, models.DeliverySent, delivery.Channel, delivery.Provider, at); err != nil {
		// The row stays pending and the sweep will fail it.
		return nil, fmt.Errorf("record delivery: %w", err)
	}
	rec.Delivery = models.DeliverySent
	rec.Channel = delivery.Channel
	rec.Provider = delivery.Provider
	rec.SentAt = &at

	metrics.OTPIssued.WithLabelValues(string(req.Type), string(delivery.Channel)).Inc()
	log.Info("OTP issued",
		zap.String("otp_id", rec.ID.Hex()),
		zap.String("channel", string(delivery.Channel)),
		zap.String("provider", delivery.Provider),
		zap.Bool("simulated", delivery.Simulated))

	return &Issued{Record: rec, Code: code, Delivery: delivery}, nil
}

// Verify checks code against the newest delivered, unverified record for identifier.
func (e *Engine) Verify(ctx context.Context, identifier, code string, types ...models.OTPType) (*models.OTPRecord, error) {
	rec, err := e.Lookup(ctx, identifier, types...)
	if err != nil {
		e.observe(types, "invalid")
		return nil, err
	}
	now := e.now().UTC()

	if rec.IsExpired || now.After(rec.ExpiresAt) {
		if !rec.IsExpired {
			if err := e.ledger.MarkExpired(ctx, rec.ID, now); err != nil {
				return nil, err
			}
		}
		e.observe(types, "expired")
		return nil, ErrOTPExpired
	}

	if rec.IsBlocked || rec.Attempts >= e.cfg.MaxAttempts {
		if !rec.IsBlocked {
			if err := e.ledger.MarkBlocked(ctx, rec.ID, now); err != nil {
				return nil, err
			}
		}
		e.observe(types, "blocked")
		return nil, ErrOTPBlocked
	}

	if rec.Code == "" || subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		attempts, err := e.ledger.IncrementAttempts(ctx, rec.ID, now)
		if err != nil {
			return nil, err
		}
		if attempts >= e.cfg.MaxAttempts {
			if err := e.ledger.MarkBlocked(ctx, rec.ID, now); err != nil {
				return nil, err
			}
		}
		e.observe(types, "mismatch")
		return nil, &AttemptError{Remaining: max(e.cfg.MaxAttempts-attempts, 0)}
	}

	return e.markVerified(ctx, rec, now, types)
}

// Lookup returns the newest delivered, unverified record without judging it.
func (e *Engine) Lookup(ctx context.Context, identifier string, types ...models.OTPType) (*models.OTPRecord, error) {
	rec, err := e.ledger.FindLatest(ctx, identifier, types)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, err
	}
	return rec, nil
}

// Grant records a code-less, already delivered token that Consume accepts once.
func (e *Engine) Grant(ctx context.Context, req GrantRequest) (*models.OTPRecord, error) {
	now := e.now().UTC()
	rec := &models.OTPRecord{
		Identifier:     req.Identifier.Value,
		IdentifierKind: req.Identifier.Kind,
		Type:           req.Type,
		Purpose:        req.Purpose,
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		Delivery:       models.DeliverySent,
		Channel:        models.ChannelNone,
		CreatedAt:      now,
		UpdatedAt:      now,
		SentAt:         &now,
		ExpiresAt:      now.Add(e.ttlFor(req.Type, req.Purpose)),
	}
	if err := e.ledger.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Consume verifies a granted token exactly once.
func (e *Engine) Consume(ctx context.Context, identifier string, typ models.OTPType) (*models.OTPRecord, error) {
	rec, err := e.Lookup(ctx, identifier, typ)
	if err != nil {
		return nil, err
	}
	if rec.Code != "" {
		return nil, ErrOTPInvalid
	}
	now := e.now().UTC()
	if rec.IsExpired || now.After(rec.ExpiresAt) {
		if err := e.ledger.MarkExpired(ctx, rec.ID, now); err != nil {
			return nil, err
		}
		return nil, ErrOTPExpired
	}
	return e.markVerified(ctx, rec, now, []models.OTPType{typ})
}

// Sweep deletes unverified records past expiry plus grace, then reconciles stale pending rows.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	now := e.now().UTC()
	deleted, delErr := e.ledger.DeleteExpired(ctx, now.Add(-e.cfg.SweepGrace))
	failed, recErr := e.reconcile(ctx, now)

	metrics.OTPSwept.WithLabelValues("deleted").Add(float64(deleted))
	metrics.OTPSwept.WithLabelValues("failed").Add(float64(failed))
	if deleted > 0 || failed > 0 {
		e.logger.Debug("OTP sweep", zap.Int64("deleted", deleted), zap.Int64("failed", failed))
	}
	return SweepResult{Deleted: deleted, Failed: failed}, errors.Join(delErr, recErr)
}

// Reconcile marks pending records older than the pending timeout as failed.
func (e *Engine) Reconcile(ctx context.Context) (int64, error) {
	return e.reconcile(ctx, e.now().UTC())
}

func (e *Engine) reconcile(ctx context.Context, now time.Time) (int64, error) {
	return e.ledger.FailStalePending(ctx, now.Add(-e.cfg.PendingTimeout), now)
}

func (e *Engine) markVerified(ctx context.Context, rec *models.OTPRecord, now time.Time, types []models.OTPType) (*models.OTPRecord, error) {
	ok, err := e.ledger.MarkVerified(ctx, rec.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.observe(types, "race")
		return nil, ErrOTPInvalid
	}
	rec.IsVerified = true
	rec.VerifiedAt = &now
	e.observe(types, "verified")
	return rec, nil
}

func (e *Engine) ttlFor(typ models.OTPType, purpose models.Purpose) time.Duration {
	if typ == models.OTPTypePasswordReset || purpose == models.PurposePasswordReset {
		return e.cfg.PasswordResetTTL
	}
	return e.cfg.TTL
}

// acquire reports whether a cooldown lock is now held. A failing lock store degrades to the ledger check.
func (e *Engine) acquire(ctx context.Context, key models.LedgerKey) (bool, error) {
	if e.cooldown == nil || e.cfg.RateWindow <= 0 {
		return false, nil
	}
	ok, err := e.cooldown.Acquire(ctx, cooldownKey(key), e.cfg.RateWindow)
	if err != nil {
		e.logger.Warn("Cooldown lock unavailable, using ledger check only",
			zap.String("identifier", identity.Mask(key.Identifier)),
			zap.Error(err))
		return false, nil
	}
	if !ok {
		metrics.OTPRateLimited.WithLabelValues(string(key.Type)).Inc()
		return false, ErrRateLimited
	}
	return true, nil
}

func (e *Engine) release(ctx context.Context, key models.LedgerKey) {
	if err := e.cooldown.Release(ctx, cooldownKey(key)); err != nil {
		e.logger.Warn("Failed to release cooldown lock", zap.Error(err))
	}
}

func (e *Engine) observe(types []models.OTPType, outcome string) {
	label := ""
	if len(types) > 0 {
		label = string(types[0])
	}
	metrics.OTPVerifications.WithLabelValues(label, outcome).Inc()
}
