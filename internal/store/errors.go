package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoAccount is returned before the admin account has been bootstrapped.
	ErrNoAccount = errors.New("admin account not initialized")
)
