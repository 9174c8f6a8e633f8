package model

import (
	"time"

	"marketplace-auth/internal/models"
)

// Envelope is embedded in every response body.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Debug   string   `json:"debug,omitempty"`
	Details []string `json:"details,omitempty"`
}

func OK(message string) Envelope {
	return Envelope{Success: true, Message: message}
}

// UserView is the public projection of a user record.
type UserView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Name            string     `json:"name"`
	Role            string     `json:"role,omitempty"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	IsPhoneVerified bool       `json:"isPhoneVerified"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
}

func NewUserView(u *models.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:              u.ID.Hex(),
		Email:           u.Email,
		Phone:           u.Phone,
		Name:            u.Name,
		Role:            string(u.Role),
		IsEmailVerified: u.IsEmailVerified,
		IsPhoneVerified: u.IsPhoneVerified,
		LastLogin:       u.LastLogin,
	}
}

// OTPDispatch reports how a code went out. OTP is only set for simulated delivery in dev.
type OTPDispatch struct {
	OTPID          string `json:"otpId,omitempty"`
	Method         string `json:"method,omitempty"`
	Provider       string `json:"provider,omitempty"`
	SimulatedEmail bool   `json:"simulatedEmail"`
	SimulatedSMS   bool   `json:"simulatedSMS"`
	OTP            string `json:"otp,omitempty"`
}

// -------------------- ACTION RESPONSES --------------------

type CheckUserResponse struct {
	Envelope
	Exists bool      `json:"exists"`
	User   *UserView `json:"user"`
}

type OTPSentResponse struct {
	Envelope
	OTPDispatch
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Purpose           string    `json:"purpose,omitempty"`
	RequiresOTP       bool      `json:"requiresOTP,omitempty"`
	SessionID         string    `json:"sessionId,omitempty"`
	RegistrationToken string    `json:"registrationToken,omitempty"`
	UserExists        *bool     `json:"userExists,omitempty"`
	User              *UserView `json:"user,omitempty"`
}

type AuthResponse struct {
	Envelope
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresIn    int64     `json:"expiresIn"`
	IsNewUser    *bool     `json:"isNewUser,omitempty"`
	Action       string    `json:"action,omitempty"`
	User         *UserView `json:"user"`
}

type EmailOTPVerifiedResponse struct {
	Envelope
	Action       string    `json:"action,omitempty"`
	Token        string    `json:"token,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ResetToken   string    `json:"resetToken,omitempty"`
	User         *UserView `json:"user"`
}

// -------------------- TOKEN RESPONSES --------------------

type AccessTokenResponse struct {
	Envelope
	AccessToken string `json:"accessToken"`
}

type VendorLoginResponse struct {
	Envelope
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type MeResponse struct {
	Envelope
	User *UserView `json:"user"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}
