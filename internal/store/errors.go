package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("already exists")

// ErrAlreadyCompleted is returned when completing an item that already
// carries a completion timestamp.
var ErrAlreadyCompleted = errors.New("already completed")
