package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound     = errors.New("user not registered")
	ErrNotFound         = errors.New("document not found")
	ErrNoData           = errors.New("no submission data available")
	ErrSourceFailure    = errors.New("submission source request failed")
	ErrAlreadyEvaluated = errors.New("streak already evaluated for date")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInvalidHandle    = errors.New("invalid leetcode handle")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownBackend   = errors.New("unknown store backend")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrNotFound)
}

// IsNoData reports whether err means the submission feed could not be read,
// as opposed to the user having solved nothing
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrSourceFailure)
}
