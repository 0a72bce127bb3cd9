package db

import "errors"

var (
	// ErrNotFound means no record exists for the given id or key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidArgument means a required field is missing/empty or a
	// schedule time is not strictly in the future.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict means the record's status changed between read and
	// commit; the caller should treat the operation as already handled.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrAlreadyTerminal means the record is in SENT, CANCELLED or
	// FAILED and accepts no further mutation.
	ErrAlreadyTerminal = errors.New("record is in a terminal state")

	// ErrTransport wraps classifier or mail collaborator failures.
	ErrTransport = errors.New("transport failure")
)
