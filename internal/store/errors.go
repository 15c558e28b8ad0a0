package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrVersionConflict is returned by session updates whose expected
	// version is stale.
	ErrVersionConflict = errors.New("version conflict")
)
