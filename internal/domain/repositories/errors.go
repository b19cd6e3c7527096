package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrFederationNotFound is returned when a federation cannot be found
	ErrFederationNotFound = errors.New("federation not found")

	// ErrEntityNotFound is returned when an entity cannot be found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityTypeNotFound is returned when a descriptor type tag cannot be found
	ErrEntityTypeNotFound = errors.New("entity type not found")

	// ErrDuplicateFederation is returned when a federation name or slug collides
	ErrDuplicateFederation = errors.New("federation already exists")
)
