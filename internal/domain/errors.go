package domain

import "errors"

var (
	// ErrConfigInvalid is fatal and stops the process before any trading starts.
	ErrConfigInvalid = errors.New("invalid configuration")

	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrSubmissionFailure     = errors.New("transaction submission failed")
	ErrConfirmationTimeout   = errors.New("transaction not confirmed before timeout")
	ErrRelayUnavailable      = errors.New("bundle relay unavailable")
	ErrTransactionFailed     = errors.New("transaction failed on chain")
	ErrAdmissionDenied       = errors.New("admission denied by risk manager")
	ErrCircuitBreakerTripped = errors.New("daily loss circuit breaker tripped")
	ErrPositionExists        = errors.New("position already open for token")
	ErrPositionNotFound      = errors.New("no open position for token")
)
