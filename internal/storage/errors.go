package storage

import "errors"

var (
	// ErrNotFound is returned when a campaign, job or alert does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a job is not in a state that
	// allows the requested change
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// ValidationError wraps a user-facing validation message
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
