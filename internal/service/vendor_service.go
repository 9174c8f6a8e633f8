package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace-auth/internal/events"
	"marketplace-auth/internal/hashing"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
	"marketplace-auth/internal/token"
)

type VendorStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Vendor, error)
	FindByID(ctx context.Context, id string) (*models.Vendor, error)
	SetRefreshDigest(ctx context.Context, id, digest string, at time.Time) error
}

// VendorService issues revocable refresh tokens: only the digest of the latest one is accepted.
type VendorService struct {
	vendors   VendorStore
	tokens    *token.Issuer
	hasher    *hashing.Hasher
	events    events.Emitter
	validator *Validator
	now       func() time.Time
	logger    *zap.Logger
}

func NewVendorService(vendors VendorStore, tokens *token.Issuer, hasher *hashing.Hasher, emitter events.Emitter, logger *zap.Logger) *VendorService {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &VendorService{
		vendors:   vendors,
		tokens:    tokens,
		hasher:    hasher,
		events:    emitter,
		validator: NewValidator(),
		now:       time.Now,
		logger:    logger,
	}
}

func (s *VendorService) Login(ctx context.Context, req model.VendorLoginRequest) (*model.VendorLoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	vendor, err := s.vendors.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Vendor not found")
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	if err := s.hasher.VerifyPassword(vendor.PasswordHash, req.Password); err != nil {
		return nil, fail(ErrInvalidCredentials, "Invalid credentials")
	}

	access, err := s.tokens.Access(token.VendorClaims(vendor), s.tokens.AccessTTL())
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Refresh(vendor.ID.Hex())
	if err != nil {
		return nil, err
	}
	if err := s.vendors.SetRefreshDigest(ctx, vendor.ID.Hex(), hashing.TokenDigest(refresh), s.now().UTC()); err != nil {
		return nil, fmt.Errorf("store refresh digest: %w", err)
	}

	s.events.Emit(models.AuthEvent{
		Type:       models.EventVendorLogin,
		Identifier: identity.Mask(vendor.Email),
		UserID:     vendor.ID.Hex(),
		Outcome:    "password",
		RemoteAddr: remoteAddr(ctx),
	})
	return &model.VendorLoginResponse{
		Envelope:     model.OK("Login successful"),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *VendorService) Refresh(ctx context.Context, req model.RefreshRequest) (*model.AccessTokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, invalid("Refresh token missing")
	}
	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return nil, fail(ErrInvalidCredentials, "Invalid or expired token")
	}

	vendor, err := s.vendors.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(ErrForbidden, "Invalid refresh token")
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	if vendor.RefreshTokenDigest == "" || !hashing.EqualDigest(vendor.RefreshTokenDigest, hashing.TokenDigest(req.RefreshToken)) {
		return nil, fail(ErrForbidden, "Invalid refresh token")
	}

	access, err := s.tokens.Access(token.VendorClaims(vendor), s.tokens.AccessTTL())
	if err != nil {
		return nil, err
	}
	s.events.Emit(models.AuthEvent{
		Type:       models.EventTokenRefreshed,
		UserID:     vendor.ID.Hex(),
		Outcome:    "vendor",
		RemoteAddr: remoteAddr(ctx),
	})
	return &model.AccessTokenResponse{Envelope: model.OK(""), AccessToken: access}, nil
}
