package service

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when a mobile number asked for too many codes
// inside the current window.
var ErrRateLimited = errors.New("too many otp requests")

// ValidationError reports malformed user input. Message is safe to show to
// the caller as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DispatchError wraps a failure to hand the code to the SMS gateway.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch otp: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
