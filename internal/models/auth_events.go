package models

import "time"

type AuthEventType string

const (
	EventOTPIssued         AuthEventType = "otp.issued"
	EventOTPDeliveryFailed AuthEventType = "otp.delivery_failed"
	EventOTPVerified       AuthEventType = "otp.verified"
	EventOTPRejected       AuthEventType = "otp.rejected"
	EventUserRegistered    AuthEventType = "user.registered"
	EventUserLogin         AuthEventType = "user.login"
	EventPasswordReset     AuthEventType = "password.reset"
	EventVendorLogin       AuthEventType = "vendor.login"
	EventTokenRefreshed    AuthEventType = "token.refreshed"
)

// AuthEvent is the audit record fanned out to the event sinks. Identifier is always masked.
type AuthEvent struct {
	ID         string        `json:"id"`
	Type       AuthEventType `json:"type"`
	Identifier string        `json:"identifier,omitempty"`
	UserID     string        `json:"userId,omitempty"`
	OTPType    OTPType       `json:"otpType,omitempty"`
	Channel    Channel       `json:"channel,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	RemoteAddr string        `json:"remoteAddr,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}
