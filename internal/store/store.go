// Package store holds what the store implementations share.
package store

import "errors"

var (
	// ErrNotFound is returned by lookups by identity when no row exists.
	ErrNotFound = errors.New("not found")
	// ErrNoRow is returned when a write did not report an affected row.
	ErrNoRow = errors.New("store returned no row")
	// ErrDuplicateRating is returned when a rating for the pair already exists.
	ErrDuplicateRating = errors.New("rating already exists for pair")
)
