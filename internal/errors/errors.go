package errors

import (
	"errors"
	"fmt"
)

// Common error types for the desktop handoff
var (
	// Crypto errors
	ErrCryptoInit       = errors.New("crypto initialisation failed")
	ErrSerialization    = errors.New("payload serialization failed")
	ErrCryptoOp         = errors.New("crypto operation failed")
	ErrInvalidParameter = errors.New("invalid parameter")

	// Ticket errors
	ErrMalformedTicket = errors.New("malformed ticket")
	ErrTicketAuth      = errors.New("ticket authentication failed")
	ErrTicketExpired   = errors.New("ticket expired")

	// Deep link errors
	ErrEnvelopeValidation = errors.New("invalid deep link envelope")
	ErrSchemeMismatch     = errors.New("deep link scheme mismatch")
	ErrHostMismatch       = errors.New("deep link host mismatch")
	ErrMissingStatus      = errors.New("deep link status missing")
	ErrMissingChallenge   = errors.New("deep link challenge missing")
	ErrChallengeMismatch  = errors.New("challenge mismatch")
	ErrMissingTicket      = errors.New("deep link ticket missing")
	ErrProviderReported   = errors.New("identity provider reported an error")

	// Trust and request errors
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
	ErrNotFound     = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
