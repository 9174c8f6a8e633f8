package otp

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimited    = errors.New("otp requested too recently")
	ErrOTPInvalid     = errors.New("otp invalid")
	ErrOTPExpired     = errors.New("otp expired")
	ErrOTPBlocked     = errors.New("otp blocked after too many attempts")
	ErrDeliveryFailed = errors.New("otp delivery failed")
)

// AttemptError is returned for a wrong code. It matches ErrOTPInvalid.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrOTPInvalid, e.Remaining)
}

func (e *AttemptError) Unwrap() error { return ErrOTPInvalid }

// RemainingAttempts extracts the attempt budget from a wrong-code error.
func RemainingAttempts(err error) (int, bool) {
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.Remaining, true
	}
	return 0, false
}
