package model

// Action is the discriminator of POST /api/auth.
type Action string

const (
	ActionCheckUser             Action = "check-user"
	ActionVerifyPassword        Action = "verify-password"
	ActionSendEmailOTP          Action = "send-email-otp"
	ActionVerifyEmailOTP        Action = "verify-email-otp"
	ActionSendPhoneOTP          Action = "send-phone-otp"
	ActionVerifyPhoneOTP        Action = "verify-phone-otp"
	ActionRegister              Action = "register"
	ActionVerifyRegistrationOTP Action = "verify-registration-otp"
	ActionLogin                 Action = "login"
	ActionVerifyLoginOTP        Action = "verify-login-otp"
	ActionResendOTP             Action = "resend-otp"
	ActionResetPassword         Action = "reset-password"
)

// AllActions lists every action the dispatcher must serve.
var AllActions = []Action{
	ActionCheckUser,
	ActionVerifyPassword,
	ActionSendEmailOTP,
	ActionVerifyEmailOTP,
	ActionSendPhoneOTP,
	ActionVerifyPhoneOTP,
	ActionRegister,
	ActionVerifyRegistrationOTP,
	ActionLogin,
	ActionVerifyLoginOTP,
	ActionResendOTP,
	ActionResetPassword,
}

// ResendType selects what resend-otp re-issues.
type ResendType string

const (
	ResendEmailLogin   ResendType = "email-login"
	ResendPhone        ResendType = "phone"
	ResendRegistration ResendType = "registration"
)

// EmailOTPAction is the follow-up applied after a verified email OTP.
type EmailOTPAction string

const (
	EmailActionPasswordReset EmailOTPAction = "password-reset"
	EmailActionLogin         EmailOTPAction = "login"
	EmailActionVerifyEmail   EmailOTPAction = "verify-email"
)
