package feature

import (
	"errors"
	"fmt"
)

var (
	ErrFeatureNotFound = errors.New("feature not found")
	ErrFeatureInactive = errors.New("feature is inactive")
	ErrInvalidFeature  = errors.New("invalid feature definition")
)

// InactiveFeatureError is returned when a disabled catalog feature is requested for activation.
type InactiveFeatureError struct {
	Code string
}

func (e *InactiveFeatureError) Error() string {
	return fmt.Sprintf("feature %s is inactive", e.Code)
}

func (e *InactiveFeatureError) Unwrap() error { return ErrFeatureInactive }
