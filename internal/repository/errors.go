package repository

import "github.com/Dhoini/entitlement-service/internal/domain"

// Store errors are the domain sentinels so callers match them with errors.Is
// regardless of the backing implementation.
var (
	// ErrNotFound record not found
	ErrNotFound = domain.ErrNotFound

	// ErrDuplicate a uniqueness constraint rejected the write
	ErrDuplicate = domain.ErrDuplicate

	// ErrUsesExhausted no use of the code is left
	ErrUsesExhausted = domain.ErrUsesExhausted

	// ErrInvalidData the record cannot be stored as given
	ErrInvalidData = domain.ErrInvalidInput
)
