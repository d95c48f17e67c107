package store

import "errors"

var (
	// ErrNotFound is returned when a referenced job, playbook or execution does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change violates the state machine,
	// including a conditional update that lost a race against another writer.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyExists is returned when inserting a record whose id is taken.
	ErrAlreadyExists = errors.New("already exists")
)
