package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

func testValidator() *Validator {
	dirs := staticDirs{
		variations: map[int64]bool{1: true, 2: true},
		suppliers:  map[int64]bool{10: true},
	}
	return NewValidator(dirs, dirs)
}

func TestValidateRequiresLines(t *testing.T) {
	err := testValidator().Validate(context.Background(), MovementGRN, CreateMovementInput{SupplierID: 10})
	var validation shared.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "lines", validation.Field)
}

func TestValidateUnknownSupplier(t *testing.T) {
	err := testValidator().Validate(context.Background(), MovementGRN, CreateMovementInput{
		SupplierID: 99,
		Lines:      []LineInput{{VariationID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestValidateGINRequiresIssuedTo(t *testing.T) {
	err := testValidator().Validate(context.Background(), MovementGIN, CreateMovementInput{
		Lines: []LineInput{{VariationID: 1, Quantity: 1}},
	})
	var validation shared.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "issued_to", validation.Field)
}

func TestValidateReportsFirstUnknownVariation(t *testing.T) {
	err := testValidator().Validate(context.Background(), MovementGIN, CreateMovementInput{
		IssuedTo: "workshop",
		Lines: []LineInput{
			{VariationID: 1, Quantity: 1},
			{VariationID: 5, Quantity: 1},
			{VariationID: 6, Quantity: 1},
		},
	})
	var notFound shared.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "variation", notFound.Entity)
	require.Equal(t, int64(5), notFound.ID)
}

func TestValidateLineConstraints(t *testing.T) {
	v := testValidator()
	ctx := context.Background()

	err := v.Validate(ctx, MovementGIN, CreateMovementInput{
		IssuedTo: "workshop",
		Lines:    []LineInput{{VariationID: 1, Quantity: 0}},
	})
	var validation shared.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "quantity", validation.Field)

	err = v.Validate(ctx, MovementGIN, CreateMovementInput{
		IssuedTo: "workshop",
		Lines:    []LineInput{{VariationID: 1, Quantity: 1, UnitCost: decimal.NewFromInt(-1)}},
	})
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "unit_cost", validation.Field)
}

func TestValidateAcceptsZeroCost(t *testing.T) {
	err := testValidator().Validate(context.Background(), MovementGIN, CreateMovementInput{
		IssuedTo: "workshop",
		Lines:    []LineInput{{VariationID: 1, Quantity: 3}},
	})
	require.NoError(t, err)
}
