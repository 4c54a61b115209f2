package domain

import "errors"

// Shared error taxonomy. Packages wrap these so HTTP handlers can map them
// to status codes without knowing which layer produced them.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("unauthorized")
	ErrConflict   = errors.New("state conflict")
)
