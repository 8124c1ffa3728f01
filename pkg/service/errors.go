package service

import "errors"

// Every failure in the core is one of these; all are terminal for the
// request. ErrAuthFailure deliberately covers both unknown-email and
// wrong-password so callers can't tell which occurred.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAuthFailure     = errors.New("invalid email or password")
)
