package model

// -------------------- ACTION REQUESTS --------------------

type CheckUserRequest struct {
	Email string `json:"email" validate:"omitempty,email,joiemail"`
	Phone string `json:"phone" validate:"omitempty,phonepattern"`
}

type VerifyPasswordRequest struct {
	Email      string `json:"email" validate:"required,email,joiemail"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type SendEmailOTPRequest struct {
	Email   string `json:"email" validate:"required,email,joiemail"`
	Purpose string `json:"purpose"`
}

type VerifyEmailOTPRequest struct {
	Email      string `json:"email" validate:"required,email,joiemail"`
	OTP        string `json:"otp" validate:"required,len=6,numeric"`
	ActionType string `json:"actionType"`
}

type SendPhoneOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type VerifyPhoneOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Name  string `json:"name" validate:"omitempty,max=100"`
	Email string `json:"email" validate:"omitempty,email,joiemail"`
}

type RegisterRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required_without=Phone,omitempty,email,joiemail"`
	Phone           string `json:"phone" validate:"required_without=Email,omitempty,phonepattern"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=owner agent builder user admin"`
	Purpose         string `json:"purpose" validate:"omitempty,oneof=sell rent pg"`
	PropertyType    string `json:"propertyType" validate:"omitempty,oneof=residential commercial"`
	SpecificType    string `json:"specificType" validate:"omitempty,oneof=apartment villa builder-floor studio serviced farmhouse plot other-residential office shop warehouse land-commercial other-commercial pg-apartment pg-hostel pg-house pg-shared"`
}

type VerifyRegistrationOTPRequest struct {
	RegistrationToken string `json:"registrationToken" validate:"required"`
	OTP               string `json:"otp" validate:"required,len=6,numeric"`
}

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email,joiemail"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type VerifyLoginOTPRequest struct {
	SessionID string `json:"sessionId" validate:"required_without=Email"`
	Email     string `json:"email" validate:"required_without=SessionID,omitempty,email,joiemail"`
	OTP       string `json:"otp" validate:"required,len=6,numeric"`
}

type ResendOTPRequest struct {
	Identifier string     `json:"identifier" validate:"required"`
	Type       ResendType `json:"type" validate:"required"`
	Purpose    string     `json:"purpose"`
}

type ResetPasswordRequest struct {
	ResetToken      string `json:"resetToken" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
}

// -------------------- TOKEN REQUESTS --------------------

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type VendorLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
