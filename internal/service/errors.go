package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("not found")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("rate limited")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrOTPRejected        = errors.New("otp rejected")
)

// Error carries the client-facing message. It unwraps to Kind and, when set, Cause.
type Error struct {
	Kind    error
	Message string
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func fail(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func invalid(message string) *Error {
	return fail(ErrInvalidInput, message)
}

func notFound(message string) *Error {
	return fail(ErrUserNotFound, message)
}
