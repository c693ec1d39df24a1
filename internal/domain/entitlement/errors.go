package entitlement

import "errors"

var (
	// ErrUnknownFeature is a validation error: the feature code is not in the catalog.
	ErrUnknownFeature   = errors.New("unknown feature code")
	ErrInvalidSource    = errors.New("invalid entitlement source")
	ErrInvalidExpiry    = errors.New("expiry must be in the future")
	ErrInvalidWorkspace = errors.New("workspace id is required")
	ErrInvalidWindow    = errors.New("days ahead must not be negative")

	// ErrVersionConflict is returned by a compare-and-swap write that lost a race.
	ErrVersionConflict = errors.New("workspace feature was modified concurrently")
)
