package service

import "errors"

// Error classes. Every specific error below wraps exactly one of these, so
// callers can branch on the class with errors.Is.
var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown account, program or tier. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientPoints is returned when a redemption exceeds the available balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrConflict marks a concurrent update. Retried internally before it reaches callers.
	ErrConflict = errors.New("concurrent update conflict")
)

var (
	// ErrInvalidRequest is returned when request data is nil or incomplete
	ErrInvalidRequest = classified("invalid request", ErrValidation)

	// ErrInvalidAmount is returned for amounts that are out of range or finer than the ledger stores
	ErrInvalidAmount = classified("invalid amount", ErrValidation)

	// ErrInvalidSource is returned when a points source is not in the closed set
	ErrInvalidSource = classified("invalid points source", ErrValidation)

	// ErrInvalidRedemptionType is returned when a redemption type is not in the closed set
	ErrInvalidRedemptionType = classified("invalid redemption type", ErrValidation)

	// ErrTierThreshold is returned when tier thresholds are not strictly increasing
	ErrTierThreshold = classified("tier thresholds must be strictly increasing", ErrValidation)

	// ErrAccountInactive is returned for earn or redeem on a deactivated account
	ErrAccountInactive = classified("loyalty account is inactive", ErrValidation)

	// ErrProgramInactive is returned for enroll, earn or redeem in a deactivated program
	ErrProgramInactive = classified("loyalty program is inactive", ErrValidation)

	// ErrAccountNotFound is returned when a customer has no account in the program
	ErrAccountNotFound = classified("loyalty account not found", ErrNotFound)

	// ErrProgramNotFound is returned when a program cannot be found
	ErrProgramNotFound = classified("loyalty program not found", ErrNotFound)

	// ErrAccountExists is returned when a customer is enrolled twice into one program
	ErrAccountExists = errors.New("loyalty account already exists")
)

type classifiedError struct {
	msg   string
	class error
}

func classified(msg string, class error) error {
	return &classifiedError{msg: msg, class: class}
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.class }
