package cocoro

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAuthorizationExpired is returned when a call was still unauthorized
	// after the single re-login and retry.
	ErrAuthorizationExpired = errors.New("cocoro authorization expired")

	// ErrMissingDeviceID rejects calls made without a device identifier.
	ErrMissingDeviceID = errors.New("cocoro device id is required")
)

// AuthenticationError reports a failed step of the SSO login chain.
type AuthenticationError struct {
	Step    string
	Reason  string
	RetryAt time.Time
	Err     error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("cocoro login failed at %s: %s", e.Step, e.Reason)
	if !e.RetryAt.IsZero() {
		msg += fmt.Sprintf(" (retry at %s)", e.RetryAt.UTC().Format(time.RFC3339))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// DecodeError reports an expected opcode or field missing from a response.
type DecodeError struct {
	Opcode string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	target := e.Opcode
	if e.Field != "" {
		target += "." + e.Field
	}
	return fmt.Sprintf("cocoro decode %s: %s", target, e.Reason)
}

// InvalidArgumentError rejects bad input before any request is made.
type InvalidArgumentError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// HTTPStatusError surfaces unexpected portal responses.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("cocoro api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func isAuthFailure(err error) bool {
	var authErr *AuthenticationError
	return errors.Is(err, ErrAuthorizationExpired) || errors.As(err, &authErr)
}
