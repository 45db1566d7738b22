package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAuthentication    = errors.New("webhook authentication failed")
)

// ValidationError reports bad input. It is always returned before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError is returned for an edge the state machine does not define.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %q to %q", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GatewayError wraps a failed call to the payment processor. Callers may retry.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Retryable() bool { return true }

// AuthenticationError is returned when a webhook payload cannot be verified.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrAuthentication, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrAuthentication, e.Reason)
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuthentication, e.Err}
	}
	return []error{ErrAuthentication}
}

// IsRetryable reports whether err came from a step that may succeed when repeated.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
