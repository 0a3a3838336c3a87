package scim

import "errors"

var (
	// ErrNotFound is returned by a directory when a user, group or org unit does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotSupported is returned by the target when it lacks a capability, e.g. teams.
	ErrNotSupported = errors.New("not supported")
	// ErrValidation signals an empty or contradictory sync scope.
	ErrValidation = errors.New("invalid configuration")
)
