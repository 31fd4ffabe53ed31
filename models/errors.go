package models

import "errors"

// Callers match these with errors.Is.
var (
	ErrConflict        = errors.New("already exists")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation error")
)
