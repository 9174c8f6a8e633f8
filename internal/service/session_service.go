package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"marketplace-auth/internal/events"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"
	"marketplace-auth/internal/token"
)

// SessionService exchanges user refresh tokens statelessly and serves the current user.
type SessionService struct {
	users  UserStore
	tokens *token.Issuer
	events events.Emitter
	logger *zap.Logger
}

func NewSessionService(users UserStore, tokens *token.Issuer, emitter events.Emitter, logger *zap.Logger) *SessionService {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &SessionService{users: users, tokens: tokens, events: emitter, logger: logger}
}

func (s *SessionService) Refresh(ctx context.Context, req model.RefreshRequest) (*model.AccessTokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, invalid("Refresh token required")
	}
	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return nil, fail(ErrForbidden, "Invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	access, err := s.tokens.Access(token.UserClaims(user), s.tokens.AccessTTL())
	if err != nil {
		return nil, err
	}
	s.events.Emit(models.AuthEvent{
		Type:       models.EventTokenRefreshed,
		UserID:     user.ID.Hex(),
		Outcome:    "user",
		RemoteAddr: remoteAddr(ctx),
	})
	return &model.AccessTokenResponse{Envelope: model.OK(""), AccessToken: access}, nil
}

func (s *SessionService) Me(ctx context.Context, userID string) (*model.MeResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &model.MeResponse{Envelope: model.OK(""), User: model.NewUserView(user)}, nil
}

// Authenticate parses a bearer access token.
func (s *SessionService) Authenticate(raw string) (*token.Claims, error) {
	return s.tokens.ParseAccess(raw)
}
