package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{NotFoundError{Entity: "movement", ID: 1}, CodeNotFound},
		{ValidationError{Field: "quantity", Reason: "must be positive"}, CodeValidation},
		{InsufficientStockError{VariationID: 1, Requested: 10, Available: 3}, CodeInsufficientStock},
		{ConflictError{Reason: "duplicate reference"}, CodeConflict},
		{ErrIdempotencyConflict, CodeConflict},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, ErrorCode(tc.err), tc.err.Error())
	}
	require.Empty(t, ErrorCode(nil))
}

func TestErrorCodeSeesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("posting movement: %w", InsufficientStockError{VariationID: 2, Requested: 5, Available: 0})
	require.Equal(t, CodeInsufficientStock, ErrorCode(err))
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := NotFoundError{Entity: "supplier", ID: 9}
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserSafeMessageMasksInternal(t *testing.T) {
	require.Equal(t, "internal error", UserSafeMessage(errors.New("pq: connection refused")))
	require.Equal(t, "supplier 9 not found", UserSafeMessage(NotFoundError{Entity: "supplier", ID: 9}))
}
