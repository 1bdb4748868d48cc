package shared

import (
	"errors"
	"fmt"
)

// Stable machine-readable codes returned to API clients.
const (
	CodeValidation        = "VALIDATION"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError is returned when an issuing movement requests
// more than the current balance.
type InsufficientStockError struct {
	VariationID int64
	Requested   int64
	Available   int64
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variation %d: requested %d, available %d", e.VariationID, e.Requested, e.Available)
}

// ConflictError reports duplicate reference numbers or lost concurrent updates.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// ErrorCode classifies err into one of the stable codes.
func ErrorCode(err error) string {
	var (
		notFound     NotFoundError
		validation   ValidationError
		insufficient InsufficientStockError
		conflict     ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound) || errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.As(err, &insufficient):
		return CodeInsufficientStock
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &conflict) || errors.Is(err, ErrIdempotencyConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// UserSafeMessage returns a message suitable for API clients. Internal
// failures are masked; classified errors pass through verbatim.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if ErrorCode(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
