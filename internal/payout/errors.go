package payout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid payout status transition")

	// ErrReceiptRequired is returned when a request that needs an invoice receipt is marked paid
	// before one was uploaded.
	ErrReceiptRequired = errors.New("invoice receipt required before payment")

	// ErrNotRequestOwner is returned when an analyst acts on another analyst's request.
	ErrNotRequestOwner = errors.New("payout request belongs to another analyst")

	// ErrNothingEligible is returned by Submit when no selected invoice survives re-validation.
	ErrNothingEligible = errors.New("no selected invoice is eligible for cashout")
)

// ValidationError reports a missing or malformed input. The operation was not attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// TransitionError describes a status change the state machine does not allow.
type TransitionError struct {
	RequestID string
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payout request %s cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Error wraps a failed payout operation.
type Error struct {
	// Op is the operation that failed (e.g., "Approve").
	Op string

	RequestID string

	Err error
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("payout: %s %s failed: %v", e.Op, e.RequestID, e.Err)
	}
	return fmt.Sprintf("payout: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, RequestID: requestID, Err: err}
}
