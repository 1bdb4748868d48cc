package ledger

import (
	"context"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

// VariationDirectory answers batched existence lookups against the
// product catalog. One call covers all lines of a movement.
type VariationDirectory interface {
	VariationsExist(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// SupplierDirectory answers supplier existence lookups.
type SupplierDirectory interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
}

// Validator runs the read-only pre-checks for a candidate movement.
// Checks run in a fixed order and report the first violation:
// counterparty existence, then per-line quantity and cost constraints.
// Balance sufficiency is not checked here; the orchestrator verifies it
// under the stock row lock so the decision cannot go stale.
type Validator struct {
	variations VariationDirectory
	suppliers  SupplierDirectory
}

// NewValidator constructs a Validator.
func NewValidator(variations VariationDirectory, suppliers SupplierDirectory) *Validator {
	return &Validator{variations: variations, suppliers: suppliers}
}

// Validate checks the candidate header and lines for typ.
func (v *Validator) Validate(ctx context.Context, typ MovementType, input CreateMovementInput) error {
	if len(input.Lines) == 0 {
		return shared.ValidationError{Field: "lines", Reason: "at least one line required"}
	}

	if typ == MovementGRN || typ == MovementReturn {
		if input.SupplierID <= 0 {
			return shared.ValidationError{Field: "supplier_id", Reason: "required"}
		}
		ok, err := v.suppliers.SupplierExists(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFoundError{Entity: "supplier", ID: input.SupplierID}
		}
	}
	if typ == MovementGIN && input.IssuedTo == "" {
		return shared.ValidationError{Field: "issued_to", Reason: "required"}
	}

	ids := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.VariationID <= 0 {
			return shared.ValidationError{Field: "variation_id", Reason: "required"}
		}
		ids = append(ids, line.VariationID)
	}
	exists, err := v.variations.VariationsExist(ctx, ids)
	if err != nil {
		return err
	}
	for _, line := range input.Lines {
		if !exists[line.VariationID] {
			return shared.NotFoundError{Entity: "variation", ID: line.VariationID}
		}
	}

	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return shared.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		if line.UnitCost.IsNegative() {
			return shared.ValidationError{Field: "unit_cost", Reason: "must not be negative"}
		}
	}
	return nil
}
