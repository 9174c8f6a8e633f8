package models

import (
	"time"

	"marketplace-auth/internal/identity"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OTPType string

const (
	OTPTypeLogin             OTPType = "login"
	OTPTypeEmailVerification OTPType = "email-verification"
	OTPTypeSMS               OTPType = "sms"
	OTPTypeRegistration      OTPType = "registration"
	OTPTypePasswordReset     OTPType = "password-reset"
)

type Purpose string

const (
	PurposeLogin             Purpose = "login"
	PurposePasswordReset     Purpose = "password-reset"
	PurposeVerifyEmail       Purpose = "verify-email"
	PurposePhoneVerification Purpose = "phone-verification"
	PurposeRegistration      Purpose = "registration"
)

// ParseEmailPurpose maps the purpose of an email OTP request; empty means login.
func ParseEmailPurpose(raw string) (Purpose, bool) {
	switch Purpose(raw) {
	case "":
		return PurposeLogin, true
	case PurposeLogin, PurposePasswordReset, PurposeVerifyEmail:
		return Purpose(raw), true
	default:
		return "", false
	}
}

type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

type Channel string

const (
	ChannelNone       Channel = "none"
	ChannelEmail      Channel = "email"
	ChannelSMS        Channel = "sms"
	ChannelSMSGateway Channel = "sms-gateway"
)

// LedgerKey scopes rate limiting to one rate key and type. Purpose is carried for logging only.
type LedgerKey struct {
	Identifier string
	Type       OTPType
	Purpose    Purpose
}

type OTPMetadata struct {
	RememberMe   bool           `bson:"rememberMe,omitempty" json:"rememberMe,omitempty"`
	ActionType   string         `bson:"actionType,omitempty" json:"actionType,omitempty"`
	UserExists   bool           `bson:"userExists,omitempty" json:"userExists,omitempty"`
	Registration *SealedPayload `bson:"registration,omitempty" json:"-"`
}

type OTPRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Identifier     string             `bson:"identifier"`
	RateKey        string             `bson:"rateKey,omitempty"`
	IdentifierKind identity.Kind      `bson:"identifierKind"`
	Code           string             `bson:"otp,omitempty"`
	Type           OTPType            `bson:"type"`
	Purpose        Purpose            `bson:"purpose"`
	UserID         string             `bson:"userId,omitempty"`
	UserEmail      string             `bson:"userEmail,omitempty"`
	UserName       string             `bson:"userName,omitempty"`
	UserPhone      string             `bson:"userPhone,omitempty"`
	Attempts       int                `bson:"attempts"`
	IsVerified     bool               `bson:"isVerified"`
	IsExpired      bool               `bson:"isExpired"`
	IsBlocked      bool               `bson:"isBlocked"`
	Delivery       DeliveryState      `bson:"delivery"`
	Channel        Channel            `bson:"channel,omitempty"`
	Provider       string             `bson:"provider,omitempty"`
	Metadata       OTPMetadata        `bson:"metadata"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
	SentAt         *time.Time         `bson:"sentAt,omitempty"`
	VerifiedAt     *time.Time         `bson:"verifiedAt,omitempty"`
	ExpiresAt      time.Time          `bson:"expiresAt"`
}

// Key returns the rate-limit scope; RateKey falls back to Identifier.
func (r *OTPRecord) Key() LedgerKey {
	id := r.RateKey
	if id == "" {
		id = r.Identifier
	}
	return LedgerKey{Identifier: id, Type: r.Type, Purpose: r.Purpose}
}

// Active reports an unverified, unexpired, unblocked, delivered record as of now.
func (r *OTPRecord) Active(now time.Time) bool {
	return !r.IsVerified && !r.IsExpired && !r.IsBlocked &&
		r.Delivery == DeliverySent && !now.After(r.ExpiresAt)
}
