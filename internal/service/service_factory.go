package service

import (
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/delivery"
	"marketplace-auth/internal/events"
	"marketplace-auth/internal/hashing"
	"marketplace-auth/internal/otp"
	"marketplace-auth/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	users    UserStore
	vendors  VendorStore
	engine   *otp.Engine
	dispatch *delivery.Dispatcher
	tokens   *token.Issuer
	hasher   *hashing.Hasher
	sealer   Sealer
	events   events.Emitter
	cfg      *config.Config
	logger   *zap.Logger

	authService    *AuthService
	sessionService *SessionService
	vendorService  *VendorService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	users UserStore,
	vendors VendorStore,
	engine *otp.Engine,
	dispatch *delivery.Dispatcher,
	tokens *token.Issuer,
	hasher *hashing.Hasher,
	sealer Sealer,
	emitter events.Emitter,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		users:    users,
		vendors:  vendors,
		engine:   engine,
		dispatch: dispatch,
		tokens:   tokens,
		hasher:   hasher,
		sealer:   sealer,
		events:   emitter,
		cfg:      cfg,
		logger:   logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(f.users, f.engine, f.dispatch, f.tokens, f.hasher, f.sealer, f.events, f.cfg, f.logger)
	}
	return f.authService
}

func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(f.users, f.tokens, f.events, f.logger)
	}
	return f.sessionService
}

func (f *ServiceFactory) VendorService() *VendorService {
	if f.vendorService == nil {
		f.vendorService = NewVendorService(f.vendors, f.tokens, f.hasher, f.events, f.logger)
	}
	return f.vendorService
}
