package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrOverRelease       = errors.New("release exceeds reserved balance")
	ErrWalletExists      = errors.New("wallet already exists for workspace")
)

// ValidationError reports caller-correctable input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientFundsError carries the amounts needed for a user-facing message.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: available %s, requested %s", e.Available.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// OverReleaseError is returned when a release would drive the reservation negative.
type OverReleaseError struct {
	Reserved  decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverReleaseError) Error() string {
	return fmt.Sprintf("release exceeds reserved balance: reserved %s, requested %s", e.Reserved.String(), e.Requested.String())
}

func (e *OverReleaseError) Unwrap() error { return ErrOverRelease }
