package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"marketplace-auth/internal/identity"
)

var phonePattern = regexp.MustCompile(`^[\+]?[1-9][\d]{9,14}$`)

var messages = map[string]string{
	"name.required":              "Name is required",
	"name.max":                   "Name cannot exceed 100 characters",
	"email.required":             "Email is required",
	"email.required_without":     "Either email or phone is required",
	"email.email":                "Please enter a valid email address",
	"email.joiemail":             "Please enter a valid email address",
	"phone.required":             "Phone number is required",
	"phone.required_without":     "Either email or phone is required",
	"phone.phonepattern":         "Please enter a valid phone number (10-15 digits)",
	"password.required":          "Password is required",
	"password.min":               "Password must be at least 6 characters",
	"confirmPassword.eqfield":    "Passwords do not match",
	"role.oneof":                 "Invalid role selected",
	"purpose.oneof":              "Invalid purpose selected",
	"propertyType.oneof":         "Invalid property type selected",
	"specificType.oneof":         "Invalid property subtype selected",
	"otp.required":               "OTP is required",
	"otp.len":                    "OTP must be 6 digits",
	"otp.numeric":                "OTP must contain only numbers",
	"registrationToken.required": "Verification code required",
	"sessionId.required_without": "Either session ID or email with OTP are required",
	"identifier.required":        "Identifier and type are required",
	"type.required":              "Identifier and type are required",
	"resetToken.required":        "Reset token is required",
}

// Validator wraps go-playground/validator with the auth API's messages.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("joiemail", func(fl validator.FieldLevel) bool {
		return identity.ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("phonepattern", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct returns nil or an *Error whose Message is the first field error.
func (val *Validator) Struct(req any) error {
	err := val.v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalid("Invalid request")
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, messageFor(fe))
	}
	return &Error{Kind: ErrInvalidInput, Message: details[0], Details: details}
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fe.Field() + " is invalid"
}
