package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/delivery"
	"marketplace-auth/internal/events"
	"marketplace-auth/internal/hashing"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/otp"
	"marketplace-auth/internal/repository"
	"marketplace-auth/internal/token"
	"marketplace-auth/internal/util"
)

// UserStore is the identity store.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	MarkPhoneVerified(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// Sealer envelope-encrypts pending registrations.
type Sealer interface {
	SealJSON(ctx context.Context, v any, aad string) (*models.SealedPayload, error)
	OpenJSON(ctx context.Context, sealed *models.SealedPayload, aad string, v any) error
}

// otpMessages are the client texts for each way a code can be rejected.
type otpMessages struct {
	invalid string
	expired string
	blocked string
}

var (
	defaultOTPMessages = otpMessages{
		invalid: "Invalid or expired OTP. Please request a new OTP.",
		expired: "OTP has expired. Please request a new OTP.",
		blocked: "Too many attempts. OTP invalidated.",
	}
	registrationOTPMessages = otpMessages{
		invalid: "Invalid or expired verification request",
		expired: "Verification OTP has expired",
		blocked: "Too many attempts. Please restart registration.",
	}
	loginSessionOTPMessages = otpMessages{
		invalid: "Invalid or expired login session",
		expired: defaultOTPMessages.expired,
		blocked: defaultOTPMessages.blocked,
	}
	resetTokenMessages = otpMessages{
		invalid: "Invalid or expired reset token",
		expired: "Reset token has expired",
		blocked: "Invalid or expired reset token",
	}
)

type remoteAddrKey struct{}

// WithRemoteAddr attaches the caller address recorded on auth events.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func remoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string)
	return addr
}

// AuthService implements every action of POST /api/auth.
type AuthService struct {
	users     UserStore
	engine    *otp.Engine
	dispatch  *delivery.Dispatcher
	tokens    *token.Issuer
	hasher    *hashing.Hasher
	sealer    Sealer
	events    events.Emitter
	validator *Validator
	cfg       *config.Config
	now       func() time.Time
	logger    *zap.Logger
}

func NewAuthService(
	users UserStore,
	engine *otp.Engine,
	dispatch *delivery.Dispatcher,
	tokens *token.Issuer,
	hasher *hashing.Hasher,
	sealer Sealer,
	emitter events.Emitter,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &AuthService{
		users:     users,
		engine:    engine,
		dispatch:  dispatch,
		tokens:    tokens,
		hasher:    hasher,
		sealer:    sealer,
		events:    emitter,
		validator: NewValidator(),
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the service clock; used by tests together with the engine clock.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Sweep runs the opportunistic ledger cleanup.
func (s *AuthService) Sweep(ctx context.Context) (otp.SweepResult, error) {
	return s.engine.Sweep(ctx)
}

// -------------------- CHECK USER --------------------

func (s *AuthService) CheckUser(ctx context.Context, req model.CheckUserRequest) (*model.CheckUserResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var (
		user *models.User
		err  error
	)
	switch {
	case req.Email != "":
		email, nerr := identity.NormalizeEmail(req.Email)
		if nerr != nil {
			return nil, invalid("Invalid email format")
		}
		user, err = s.users.FindByEmail(ctx, email)
	case req.Phone != "":
		phone, nerr := identity.NormalizePhone(req.Phone, s.cfg.SMS.CountryCode)
		if nerr != nil {
			return nil, invalid("Invalid phone number")
		}
		user, err = s.users.FindByPhone(ctx, phone)
	default:
		return nil, invalid("Either email or phone is required")
	}

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check user: %w", err)
	}
	return &model.CheckUserResponse{
		Envelope: model.OK(""),
		Exists:   user != nil,
		User:     model.NewUserView(user),
	}, nil
}

// -------------------- PASSWORD + EMAIL OTP --------------------

func (s *AuthService) VerifyPassword(ctx context.Context, req model.VerifyPasswordRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return nil, invalid("Invalid email format")
	}

	user, err := s.userByEmail(ctx, email, notFound("User not found"))
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(user.PasswordHash, req.Password); err != nil {
		return nil, fail(ErrInvalidCredentials, "Invalid password")
	}

	issued, err := s.issue(ctx, otp.IssueRequest{
		Identifier: identity.Email(email),
		Type:       models.OTPTypeLogin,
		Purpose:    models.PurposeLogin,
		UserID:     user.ID.Hex(),
		UserEmail:  user.Email,
		UserName:   user.Name,
		UserPhone:  user.Phone,
		Metadata:   models.OTPMetadata{RememberMe: req.RememberMe},
	}, s.dispatch.Email(user.Email, models.PurposeLogin, s.cfg.OTP.TTL), "Failed to send login OTP. Please try again.")
	if err != nil {
		return nil, err
	}

	return &model.OTPSentResponse{
		Envelope:    model.OK("Password verified. OTP sent to your email."),
		OTPDispatch: s.dispatched(issued),
		Email:       user.Email,
		RequiresOTP: true,
		User:        model.NewUserView(user),
	}, nil
}

func (s *AuthService) SendEmailOTP(ctx context.Context, req model.SendEmailOTPRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return nil, invalid("Invalid email format")
	}
	purpose, ok := models.ParseEmailPurpose(req.Purpose)
	if !ok {
		return nil, invalid("Invalid purpose")
	}

	user, err := s.userByEmail(ctx, email, notFound("No account found with this email"))
	if err != nil {
		return nil, err
	}
	issued, err := s.issueEmailVerification(ctx, user, email, purpose, "Failed to send OTP. Please try again.")
	if err != nil {
		return nil, err
	}

	return &model.OTPSentResponse{
		Envelope:    model.OK("OTP sent to your email"),
		OTPDispatch: s.dispatched(issued),
		Email:       email,
		Purpose:     string(purpose),
		User:        model.NewUserView(user),
	}, nil
}

func (s *AuthService) VerifyEmailOTP(ctx context.Context, req model.VerifyEmailOTPRequest) (*model.EmailOTPVerifiedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return nil, invalid("Invalid email format")
	}

	rec, err := s.verify(ctx, identity.Email(email), req.OTP, defaultOTPMessages, models.OTPTypeEmailVerification)
	if err != nil {
		return nil, err
	}
	user, err := s.recordUser(ctx, rec, email)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	switch model.EmailOTPAction(req.ActionType) {
	case model.EmailActionPasswordReset:
		grant, err := s.engine.Grant(ctx, otp.GrantRequest{
			Identifier: identity.Token(token.Opaque()),
			Type:       models.OTPTypePasswordReset,
			Purpose:    models.PurposePasswordReset,
			UserID:     user.ID.Hex(),
			UserEmail:  user.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("grant reset token: %w", err)
		}
		return &model.EmailOTPVerifiedResponse{
			Envelope:   model.OK("Email verified. You can now reset your password."),
			Action:     req.ActionType,
			ResetToken: grant.Identifier,
			User:       model.NewUserView(user),
		}, nil

	case model.EmailActionLogin:
		access, refresh, err := s.session(user, s.tokens.SessionTTL(false))
		if err != nil {
			return nil, err
		}
		if err := s.users.TouchLogin(ctx, user.ID.Hex(), now); err != nil {
			return nil, fmt.Errorf("update last login: %w", err)
		}
		user.LastLogin = &now
		s.emit(ctx, models.EventUserLogin, email, user.ID.Hex(), rec, "email-otp")
		return &model.EmailOTPVerifiedResponse{
			Envelope:     model.OK("Login successful!"),
			Action:       req.ActionType,
			Token:        access,
			RefreshToken: refresh,
			User:         model.NewUserView(user),
		}, nil

	case model.EmailActionVerifyEmail:
		if err := s.users.MarkEmailVerified(ctx, user.ID.Hex(), now); err != nil {
			return nil, fmt.Errorf("mark email verified: %w", err)
		}
		user.IsEmailVerified = true
		return &model.EmailOTPVerifiedResponse{
			Envelope: model.OK("Email verified successfully!"),
			Action:   req.ActionType,
			User:     model.NewUserView(user),
		}, nil

	default:
		return &model.EmailOTPVerifiedResponse{
			Envelope: model.OK("OTP verified successfully"),
			User:     model.NewUserView(user),
		}, nil
	}
}

// -------------------- PHONE OTP --------------------

func (s *AuthService) SendPhoneOTP(ctx context.Context, req model.SendPhoneOTPRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	phone, err := identity.NormalizePhone(req.Phone, s.cfg.SMS.CountryCode)
	if err != nil {
		return nil, invalid("Please enter a valid 10-digit phone number")
	}
	return s.sendPhone(ctx, phone, "OTP sent to your phone")
}

func (s *AuthService) sendPhone(ctx context.Context, phone, smsMessage string) (*model.OTPSentResponse, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}
	exists := user != nil

	req := otp.IssueRequest{
		Identifier: identity.Phone(phone),
		Type:       models.OTPTypeSMS,
		Purpose:    models.PurposePhoneVerification,
		UserPhone:  phone,
		Metadata:   models.OTPMetadata{UserExists: exists},
	}
	fallback := ""
	failMsg := "Failed to send OTP via SMS. Please try email login."
	if exists {
		req.UserID = user.ID.Hex()
		req.UserEmail = user.Email
		req.UserName = user.Name
		fallback = user.Email
		if fallback != "" {
			failMsg = "Failed to send OTP via SMS or email. Please try again."
		}
	}

	issued, err := s.issue(ctx, req, s.dispatch.Phone(phone, fallback, s.cfg.OTP.TTL), failMsg)
	if err != nil {
		return nil, err
	}

	message := smsMessage
	if issued.Delivery.Channel == models.ChannelEmail {
		message = "OTP sent to your registered email"
	}
	return &model.OTPSentResponse{
		Envelope:    model.OK(message),
		OTPDispatch: s.dispatched(issued),
		Phone:       phone,
		UserExists:  &exists,
	}, nil
}

func (s *AuthService) VerifyPhoneOTP(ctx context.Context, req model.VerifyPhoneOTPRequest) (*model.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	phone, err := identity.NormalizePhone(req.Phone, s.cfg.SMS.CountryCode)
	if err != nil {
		return nil, invalid("Invalid phone number format")
	}
	if util.ContainsSuspicious(req.Name) {
		return nil, invalid("Name contains invalid characters")
	}

	rec, err := s.verify(ctx, identity.Phone(phone), req.OTP, defaultOTPMessages, models.OTPTypeSMS)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user, isNew, err := s.phoneUser(ctx, phone, req, now)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.session(user, s.tokens.SessionTTL(false))
	if err != nil {
		return nil, err
	}

	eventType, message := models.EventUserLogin, "Login successful!"
	if isNew {
		eventType, message = models.EventUserRegistered, "Account created successfully!"
	}
	s.emit(ctx, eventType, phone, user.ID.Hex(), rec, "phone-otp")

	return &model.AuthResponse{
		Envelope:     model.OK(message),
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.SessionTTL(false).Seconds()),
		IsNewUser:    &isNew,
		User:         model.NewUserView(user),
	}, nil
}

// phoneUser logs in the owner of phone, creating the account on first verification.
func (s *AuthService) phoneUser(ctx context.Context, phone string, req model.VerifyPhoneOTPRequest, now time.Time) (*models.User, bool, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		if err := s.users.TouchLogin(ctx, user.ID.Hex(), now); err != nil {
			return nil, false, fmt.Errorf("update last login: %w", err)
		}
		if !user.IsPhoneVerified {
			if err := s.users.MarkPhoneVerified(ctx, user.ID.Hex(), now); err != nil {
				return nil, false, fmt.Errorf("mark phone verified: %w", err)
			}
			user.IsPhoneVerified = true
		}
		user.LastLogin = &now
		return user, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("find user by phone: %w", err)
	}

	name := util.SanitizeInput(req.Name)
	if name == "" {
		name = "User"
	}
	email := ""
	if req.Email != "" {
		if email, err = identity.NormalizeEmail(req.Email); err != nil {
			return nil, false, invalid("Invalid email format")
		}
	}

	user = &models.User{
		Email:           email,
		Phone:           phone,
		Name:            name,
		Role:            models.RoleUser,
		IsPhoneVerified: true,
		LastLogin:       &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		// A concurrent verification may have created the phone account first.
		if existing, ferr := s.users.FindByPhone(ctx, phone); ferr == nil {
			return existing, false, nil
		}
		return nil, false, fail(ErrAlreadyRegistered, "Email already registered")
	}
	return user, true, nil
}

// -------------------- REGISTRATION --------------------

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	name := util.SanitizeInput(req.Name)
	switch {
	case name == "":
		return nil, invalid("Name is required")
	case util.ContainsSuspicious(name):
		return nil, invalid("Name contains invalid characters")
	}

	var email, phone string
	var err error
	if req.Email != "" {
		if email, err = identity.NormalizeEmail(req.Email); err != nil {
			return nil, invalid("Valid email is required")
		}
	}
	if req.Phone != "" {
		if phone, err = identity.NormalizePhone(req.Phone, s.cfg.SMS.CountryCode); err != nil {
			return nil, invalid("Invalid phone number. Must be 10 digits.")
		}
	}
	if err := s.ensureUnregistered(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	pending := models.PendingRegistration{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         models.Role(orDefault(req.Role, string(models.RoleUser))),
		Purpose:      orDefault(req.Purpose, "sell"),
		PropertyType: orDefault(req.PropertyType, "residential"),
		SpecificType: orDefault(req.SpecificType, "apartment"),
	}
	registrationToken := token.Opaque()
	sealed, err := s.sealer.SealJSON(ctx, pending, registrationToken)
	if err != nil {
		return nil, fmt.Errorf("seal registration: %w", err)
	}

	issued, err := s.issue(ctx, otp.IssueRequest{
		Identifier: identity.Token(registrationToken),
		Type:       models.OTPTypeRegistration,
		Purpose:    models.PurposeRegistration,
		UserEmail:  email,
		UserName:   name,
		UserPhone:  phone,
		Metadata:   models.OTPMetadata{Registration: sealed},
		RateKey:    orDefault(email, phone),
	}, s.registrationRoute(email, phone), "Failed to send verification OTP. Please try again.")
	if err != nil {
		return nil, err
	}

	message := "Verification OTP sent to your phone"
	if email != "" {
		message = "Verification OTP sent to your email"
	}
	return &model.OTPSentResponse{
		Envelope:          model.OK(message),
		OTPDispatch:       s.dispatched(issued),
		Email:             email,
		Phone:             phone,
		RequiresOTP:       true,
		RegistrationToken: registrationToken,
	}, nil
}

func (s *AuthService) VerifyRegistrationOTP(ctx context.Context, req model.VerifyRegistrationOTPRequest) (*model.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	rec, err := s.verify(ctx, identity.Token(req.RegistrationToken), req.OTP, registrationOTPMessages, models.OTPTypeRegistration)
	if err != nil {
		return nil, err
	}
	if rec.Metadata.Registration == nil {
		return nil, fail(ErrOTPRejected, registrationOTPMessages.invalid)
	}
	var pending models.PendingRegistration
	if err := s.sealer.OpenJSON(ctx, rec.Metadata.Registration, req.RegistrationToken, &pending); err != nil {
		return nil, fmt.Errorf("open registration: %w", err)
	}
	if err := s.ensureUnregistered(ctx, pending.Email, pending.Phone); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		Email:           pending.Email,
		Phone:           pending.Phone,
		PasswordHash:    pending.PasswordHash,
		Name:            pending.Name,
		Role:            pending.Role,
		Purpose:         pending.Purpose,
		PropertyType:    pending.PropertyType,
		SpecificType:    pending.SpecificType,
		IsEmailVerified: pending.Email != "",
		IsPhoneVerified: pending.Email == "" && rec.Channel != models.ChannelEmail,
		LastLogin:       &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fail(ErrAlreadyRegistered, "Email or phone number already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	access, refresh, err := s.session(user, s.tokens.SessionTTL(false))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventUserRegistered, orDefault(pending.Email, pending.Phone), user.ID.Hex(), rec, "registration")

	if user.Email != "" {
		go func(to, name string) {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			s.dispatch.Welcome(wctx, to, name)
		}(user.Email, user.Name)
	}

	return &model.AuthResponse{
		Envelope:     model.OK("Registration successful!"),
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.SessionTTL(false).Seconds()),
		User:         model.NewUserView(user),
	}, nil
}

func (s *AuthService) registrationRoute(email, phone string) otp.DeliverFunc {
	if email != "" {
		return s.dispatch.Email(email, models.PurposeRegistration, s.cfg.OTP.TTL)
	}
	return s.dispatch.Phone(phone, "", s.cfg.OTP.TTL)
}

func (s *AuthService) ensureUnregistered(ctx context.Context, email, phone string) error {
	if email != "" {
		_, err := s.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return fail(ErrAlreadyRegistered, "Email already registered")
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find user by email: %w", err)
		}
	}
	if phone != "" {
		_, err := s.users.FindByPhone(ctx, phone)
		switch {
		case err == nil:
			return fail(ErrAlreadyRegistered, "Phone number already registered")
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find user by phone: %w", err)
		}
	}
	return nil
}

// -------------------- LOGIN --------------------

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return nil, invalid("Invalid email format")
	}

	user, err := s.userByEmail(ctx, email, fail(ErrInvalidCredentials, "Invalid credentials"))
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(user.PasswordHash, req.Password); err != nil {
		return nil, fail(ErrInvalidCredentials, "Invalid credentials")
	}

	sessionID := token.Opaque()
	issued, err := s.issue(ctx, otp.IssueRequest{
		Identifier: identity.Token(sessionID),
		Type:       models.OTPTypeLogin,
		Purpose:    models.PurposeLogin,
		UserID:     user.ID.Hex(),
		UserEmail:  user.Email,
		UserName:   user.Name,
		Metadata:   models.OTPMetadata{RememberMe: req.RememberMe},
	}, s.dispatch.Email(user.Email, models.PurposeLogin, s.cfg.OTP.TTL), "Failed to send login OTP. Please try again.")
	if err != nil {
		return nil, err
	}

	return &model.OTPSentResponse{
		Envelope:    model.OK("Login OTP sent to your email"),
		OTPDispatch: s.dispatched(issued),
		Email:       user.Email,
		RequiresOTP: true,
		SessionID:   sessionID,
	}, nil
}

func (s *AuthService) VerifyLoginOTP(ctx context.Context, req model.VerifyLoginOTPRequest) (*model.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var (
		rec   *models.OTPRecord
		email string
		err   error
	)
	if req.SessionID != "" {
		rec, err = s.verify(ctx, identity.Token(req.SessionID), req.OTP, loginSessionOTPMessages, models.OTPTypeLogin)
	} else {
		if email, err = identity.NormalizeEmail(req.Email); err != nil {
			return nil, invalid("Invalid email format")
		}
		rec, err = s.verify(ctx, identity.Email(email), req.OTP, defaultOTPMessages,
			models.OTPTypeLogin, models.OTPTypeEmailVerification)
	}
	if err != nil {
		return nil, err
	}

	user, err := s.recordUser(ctx, rec, email)
	if err != nil {
		return nil, err
	}

	ttl := s.tokens.SessionTTL(rec.Metadata.RememberMe)
	access, refresh, err := s.session(user, ttl)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID.Hex(), now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now
	s.emit(ctx, models.EventUserLogin, orDefault(email, user.Email), user.ID.Hex(), rec, "login-otp")

	return &model.AuthResponse{
		Envelope:     model.OK("Login successful"),
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ttl.Seconds()),
		User:         model.NewUserView(user),
	}, nil
}

// -------------------- RESEND --------------------

func (s *AuthService) ResendOTP(ctx context.Context, req model.ResendOTPRequest) (*model.OTPSentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	switch req.Type {
	case model.ResendEmailLogin:
		email, err := identity.NormalizeEmail(req.Identifier)
		if err != nil {
			return nil, invalid("Invalid email format")
		}
		purpose, ok := models.ParseEmailPurpose(req.Purpose)
		if !ok {
			return nil, invalid("Invalid purpose")
		}
		user, err := s.userByEmail(ctx, email, notFound("User not found"))
		if err != nil {
			return nil, err
		}
		issued, err := s.issueEmailVerification(ctx, user, email, purpose, "Failed to resend OTP")
		if err != nil {
			return nil, err
		}
		return &model.OTPSentResponse{
			Envelope:    model.OK("OTP resent to email"),
			OTPDispatch: s.dispatched(issued),
			Email:       email,
			Purpose:     string(purpose),
			User:        model.NewUserView(user),
		}, nil

	case model.ResendPhone:
		phone, err := identity.NormalizePhone(req.Identifier, s.cfg.SMS.CountryCode)
		if err != nil {
			return nil, invalid("Invalid phone number")
		}
		return s.sendPhone(ctx, phone, "OTP resent to your phone")

	case model.ResendRegistration:
		return s.resendRegistration(ctx, req.Identifier)

	default:
		return nil, invalid("Invalid resend type")
	}
}

// resendRegistration issues a fresh record under the same token, carrying the sealed payload forward.
func (s *AuthService) resendRegistration(ctx context.Context, registrationToken string) (*model.OTPSentResponse, error) {
	expired := invalid("Registration session expired. Please restart registration.")
	source, err := s.engine.Lookup(ctx, registrationToken, models.OTPTypeRegistration)
	if err != nil {
		if errors.Is(err, otp.ErrOTPInvalid) {
			return nil, expired
		}
		return nil, err
	}
	// A blocked source may still be resent; the fresh record keeps its own attempts.
	if source.IsExpired || s.now().UTC().After(source.ExpiresAt) || source.Metadata.Registration == nil {
		return nil, expired
	}

	issued, err := s.issue(ctx, otp.IssueRequest{
		Identifier: identity.Token(registrationToken),
		Type:       models.OTPTypeRegistration,
		Purpose:    models.PurposeRegistration,
		UserEmail:  source.UserEmail,
		UserName:   source.UserName,
		UserPhone:  source.UserPhone,
		Metadata:   models.OTPMetadata{Registration: source.Metadata.Registration},
		RateKey:    orDefault(source.UserEmail, source.UserPhone),
	}, s.registrationRoute(source.UserEmail, source.UserPhone), "Failed to resend OTP")
	if err != nil {
		return nil, err
	}

	message := "Registration OTP resent to your phone"
	if source.UserEmail != "" {
		message = "Registration OTP resent to your email"
	}
	return &model.OTPSentResponse{
		Envelope:          model.OK(message),
		OTPDispatch:       s.dispatched(issued),
		RegistrationToken: registrationToken,
	}, nil
}

// -------------------- PASSWORD RESET --------------------

func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (*model.Envelope, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	rec, err := s.engine.Consume(ctx, req.ResetToken, models.OTPTypePasswordReset)
	if err != nil {
		return nil, s.otpError(err, resetTokenMessages)
	}
	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID.Hex(), hash, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	s.emit(ctx, models.EventPasswordReset, user.Email, user.ID.Hex(), rec, "reset")

	envelope := model.OK("Password reset successful")
	return &envelope, nil
}

// -------------------- HELPERS --------------------

func (s *AuthService) issueEmailVerification(ctx context.Context, user *models.User, email string, purpose models.Purpose, failMsg string) (*otp.Issued, error) {
	return s.issue(ctx, otp.IssueRequest{
		Identifier: identity.Email(email),
		Type:       models.OTPTypeEmailVerification,
		Purpose:    purpose,
		UserID:     user.ID.Hex(),
		UserEmail:  user.Email,
		UserName:   user.Name,
		UserPhone:  user.Phone,
		Metadata:   models.OTPMetadata{ActionType: string(purpose)},
	}, s.dispatch.Email(email, purpose, s.validity(purpose)), failMsg)
}

// issue runs the engine and translates its failures into client errors.
func (s *AuthService) issue(ctx context.Context, req otp.IssueRequest, deliver otp.DeliverFunc, failMsg string) (*otp.Issued, error) {
	issued, err := s.engine.Issue(ctx, req, deliver)
	switch {
	case err == nil:
		s.events.Emit(models.AuthEvent{
			Type:       models.EventOTPIssued,
			Identifier: req.Identifier.Masked(),
			UserID:     req.UserID,
			OTPType:    req.Type,
			Channel:    issued.Delivery.Channel,
			Outcome:    issued.Delivery.Provider,
			RemoteAddr: remoteAddr(ctx),
		})
		return issued, nil
	case errors.Is(err, otp.ErrRateLimited):
		return nil, s.rateLimited()
	case errors.Is(err, otp.ErrDeliveryFailed):
		s.events.Emit(models.AuthEvent{
			Type:       models.EventOTPDeliveryFailed,
			Identifier: req.Identifier.Masked(),
			UserID:     req.UserID,
			OTPType:    req.Type,
			Outcome:    "failed",
			RemoteAddr: remoteAddr(ctx),
		})
		return nil, &Error{Kind: ErrDeliveryFailed, Message: failMsg, Cause: err}
	default:
		return nil, fmt.Errorf("issue otp: %w", err)
	}
}

func (s *AuthService) verify(ctx context.Context, id identity.Identifier, code string, msgs otpMessages, types ...models.OTPType) (*models.OTPRecord, error) {
	rec, err := s.engine.Verify(ctx, id.Value, code, types...)
	if err != nil {
		s.events.Emit(models.AuthEvent{
			Type:       models.EventOTPRejected,
			Identifier: id.Masked(),
			OTPType:    types[0],
			Outcome:    otpOutcome(err),
			RemoteAddr: remoteAddr(ctx),
		})
		return nil, s.otpError(err, msgs)
	}
	s.events.Emit(models.AuthEvent{
		Type:       models.EventOTPVerified,
		Identifier: id.Masked(),
		UserID:     rec.UserID,
		OTPType:    rec.Type,
		Channel:    rec.Channel,
		Outcome:    "verified",
		RemoteAddr: remoteAddr(ctx),
	})
	return rec, nil
}

// otpError keeps wrong and unknown codes indistinguishable; expired and blocked get their own texts.
func (s *AuthService) otpError(err error, msgs otpMessages) error {
	switch {
	case errors.Is(err, otp.ErrOTPExpired):
		return &Error{Kind: ErrOTPRejected, Message: msgs.expired, Cause: err}
	case errors.Is(err, otp.ErrOTPBlocked):
		return &Error{Kind: ErrOTPRejected, Message: msgs.blocked, Cause: err}
	case errors.Is(err, otp.ErrOTPInvalid):
		return &Error{Kind: ErrOTPRejected, Message: msgs.invalid, Cause: err}
	default:
		return fmt.Errorf("verify otp: %w", err)
	}
}

func otpOutcome(err error) string {
	switch {
	case errors.Is(err, otp.ErrOTPExpired):
		return "expired"
	case errors.Is(err, otp.ErrOTPBlocked):
		return "blocked"
	case errors.Is(err, otp.ErrOTPInvalid):
		return "invalid"
	default:
		return "error"
	}
}

func (s *AuthService) rateLimited() *Error {
	return fail(ErrRateLimited, fmt.Sprintf("Please wait %d seconds before requesting a new OTP.", int(s.cfg.OTP.RateWindow.Seconds())))
}

func (s *AuthService) userByEmail(ctx context.Context, email string, missing *Error) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, missing
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// recordUser resolves the account an OTP record belongs to, by back-reference first.
func (s *AuthService) recordUser(ctx context.Context, rec *models.OTPRecord, email string) (*models.User, error) {
	var (
		user *models.User
		err  error = repository.ErrNotFound
	)
	if rec.UserID != "" {
		user, err = s.users.FindByID(ctx, rec.UserID)
	}
	if errors.Is(err, repository.ErrNotFound) && email != "" {
		user, err = s.users.FindByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *AuthService) checkPassword(hash, password string) error {
	if hash == "" {
		return hashing.ErrMismatch
	}
	return s.hasher.VerifyPassword(hash, password)
}

func (s *AuthService) session(user *models.User, ttl time.Duration) (access, refresh string, err error) {
	if access, err = s.tokens.Access(token.UserClaims(user), ttl); err != nil {
		return "", "", err
	}
	if refresh, err = s.tokens.Refresh(user.ID.Hex()); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// dispatched shapes the delivery report; the code is only echoed for simulated delivery in dev.
func (s *AuthService) dispatched(issued *otp.Issued) model.OTPDispatch {
	d := model.OTPDispatch{
		OTPID:    issued.Record.ID.Hex(),
		Method:   "sms",
		Provider: issued.Delivery.Provider,
	}
	if issued.Delivery.Channel == models.ChannelEmail {
		d.Method = "email"
		d.SimulatedEmail = issued.Delivery.Simulated
	} else {
		d.SimulatedSMS = issued.Delivery.Simulated
	}
	if issued.Delivery.Simulated && s.cfg.Auth.ExposeDevOTP && !s.cfg.IsProduction() {
		d.OTP = issued.Code
	}
	return d
}

func (s *AuthService) validity(purpose models.Purpose) time.Duration {
	if purpose == models.PurposePasswordReset {
		return s.cfg.OTP.PasswordResetTTL
	}
	return s.cfg.OTP.TTL
}

func (s *AuthService) emit(ctx context.Context, typ models.AuthEventType, identifier, userID string, rec *models.OTPRecord, outcome string) {
	event := models.AuthEvent{
		Type:       typ,
		Identifier: identity.Mask(identifier),
		UserID:     userID,
		Outcome:    outcome,
		RemoteAddr: remoteAddr(ctx),
	}
	if rec != nil {
		event.OTPType = rec.Type
		event.Channel = rec.Channel
	}
	s.events.Emit(event)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
