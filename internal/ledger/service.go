package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, []MovementLine, error)
}

// Service orchestrates stock movements. Every operation validates first,
// then runs header, lines, stock delta, bin-card append and audit entry
// inside one repeatable-read transaction; sufficiency is re-checked under
// the stock row lock so concurrent issues against the same variation
// cannot both pass.
type Service struct {
	repo        RepositoryPort
	validator   *Validator
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, validator *Validator, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, validator: validator, idempotency: idem}
}

// LineInput describes one requested line item.
type LineInput struct {
	VariationID int64
	Quantity    int64
	UnitCost    decimal.Decimal
	Remarks     string
}

// CreateMovementInput describes a candidate movement header and lines.
type CreateMovementInput struct {
	RefNo      string
	SupplierID int64
	IssuedTo   string
	TxDate     time.Time
	Reason     string
	Remarks    string
	ActorID    int64
	Lines      []LineInput
}

// UpdateMovementInput patches a movement header. Nil fields are left
// unchanged. Lines, when set, replace all line items; only supplier
// returns allow that, since their lines never touched the ledger.
type UpdateMovementInput struct {
	SupplierID *int64
	IssuedTo   *string
	TxDate     *time.Time
	Reason     *string
	Remarks    *string
	Status     *MovementStatus
	Lines      []LineInput
	ActorID    int64
}

// CreateGRN posts a goods received note, increasing stock per line.
func (s *Service) CreateGRN(ctx context.Context, input CreateMovementInput) (MovementResult, error) {
	return s.createStockMovement(ctx, MovementGRN, input)
}

// CreateGIN posts a goods issued note, decreasing stock per line.
func (s *Service) CreateGIN(ctx context.Context, input CreateMovementInput) (MovementResult, error) {
	return s.createStockMovement(ctx, MovementGIN, input)
}

// CreateReturn records a supplier return document. The return workflow
// starts PENDING and is driven by TransitionReturn; physical stock is
// not touched by design.
func (s *Service) CreateReturn(ctx context.Context, input CreateMovementInput) (MovementResult, error) {
	if err := s.validator.Validate(ctx, MovementReturn, input); err != nil {
		return MovementResult{}, err
	}
	header := s.newHeader(MovementReturn, StatusPending, input)
	key, err := s.claimRefNo(ctx, MovementReturn, header.RefNo)
	if err != nil {
		return MovementResult{}, err
	}
	var result MovementResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMovement(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		lines, err := tx.InsertLines(ctx, id, buildLines(input.Lines))
		if err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   shared.AuditActionCreate,
			Entity:   "movement",
			EntityID: fmt.Sprintf("%d", id),
			NewValue: movementSnapshot(header, lines),
		}); err != nil {
			return err
		}
		result = MovementResult{Header: header, Lines: lines}
		return nil
	})
	if err != nil {
		s.releaseRefNo(ctx, key)
		return MovementResult{}, err
	}
	return result, nil
}

func (s *Service) createStockMovement(ctx context.Context, typ MovementType, input CreateMovementInput) (MovementResult, error) {
	if err := s.validator.Validate(ctx, typ, input); err != nil {
		return MovementResult{}, err
	}
	header := s.newHeader(typ, StatusPosted, input)
	key, err := s.claimRefNo(ctx, typ, header.RefNo)
	if err != nil {
		return MovementResult{}, err
	}
	var result MovementResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMovement(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		lines, err := tx.InsertLines(ctx, id, buildLines(input.Lines))
		if err != nil {
			return err
		}
		entries := make([]BinCardEntry, 0, len(lines))
		balances := make(map[int64]int64, len(lines))
		for _, line := range lines {
			delta := line.Quantity
			if typ == MovementGIN {
				delta = -line.Quantity
			}
			entry, balance, err := applyLineDelta(ctx, tx, lineDelta{
				VariationID: line.VariationID,
				Delta:       delta,
				Type:        typ,
				MovementID:  id,
				TxDate:      header.TxDate,
				ActorID:     input.ActorID,
				Remarks:     lineRemarks(line.Remarks, header),
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			balances[line.VariationID] = balance
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   shared.AuditActionCreate,
			Entity:   "movement",
			EntityID: fmt.Sprintf("%d", id),
			NewValue: movementSnapshot(header, lines),
		}); err != nil {
			return err
		}
		result = MovementResult{Header: header, Lines: lines, Entries: entries, Balances: balances}
		return nil
	})
	if err != nil {
		s.releaseRefNo(ctx, key)
		return MovementResult{}, err
	}
	return result, nil
}

// UpdateMovement patches header fields and, for supplier returns, may
// replace line items. Line replacement on a posted GRN/GIN is rejected:
// the bin card is append-only, so corrections go through DeleteMovement
// (which appends compensating entries) followed by a fresh movement.
func (s *Service) UpdateMovement(ctx context.Context, id int64, patch UpdateMovementInput) (Movement, error) {
	current, _, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	if patch.Lines != nil {
		if current.Type != MovementReturn {
			return Movement{}, shared.ConflictError{Reason: "line items on a posted movement are immutable"}
		}
		probe := CreateMovementInput{
			SupplierID: valueOr(patch.SupplierID, current.SupplierID),
			IssuedTo:   stringOr(patch.IssuedTo, current.IssuedTo),
			Lines:      patch.Lines,
		}
		if err := s.validator.Validate(ctx, current.Type, probe); err != nil {
			return Movement{}, err
		}
	}

	var updated Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, lines, err := tx.GetMovementForUpdate(ctx, id)
		if err != nil {
			return err
		}
		old := movementSnapshot(m, lines)

		if patch.Status != nil && *patch.Status != m.Status {
			if m.Type != MovementReturn {
				return shared.ConflictError{Reason: "only returns carry an approval status"}
			}
			if !CanTransition(m.Status, *patch.Status) {
				return shared.ConflictError{Reason: fmt.Sprintf("cannot move return from %s to %s", m.Status, *patch.Status)}
			}
			m.Status = *patch.Status
		}
		m.SupplierID = valueOr(patch.SupplierID, m.SupplierID)
		m.IssuedTo = stringOr(patch.IssuedTo, m.IssuedTo)
		if patch.TxDate != nil {
			m.TxDate = *patch.TxDate
		}
		m.Reason = stringOr(patch.Reason, m.Reason)
		m.Remarks = stringOr(patch.Remarks, m.Remarks)

		newLines := lines
		if patch.Lines != nil {
			if m.Type != MovementReturn {
				return shared.ConflictError{Reason: "line items on a posted movement are immutable"}
			}
			if err := tx.DeleteLines(ctx, id); err != nil {
				return err
			}
			newLines, err = tx.InsertLines(ctx, id, buildLines(patch.Lines))
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateMovementHeader(ctx, m); err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  patch.ActorID,
			Action:   shared.AuditActionUpdate,
			Entity:   "movement",
			EntityID: fmt.Sprintf("%d", id),
			OldValue: old,
			NewValue: movementSnapshot(m, newLines),
		}); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return updated, nil
}

// DeleteMovement soft-deletes the header and removes its lines. For
// stock-affecting movements the stock effect is unwound by appending
// compensating bin-card entries, never by editing history. Unwinding a
// GRN whose goods were already issued fails with insufficient stock.
func (s *Service) DeleteMovement(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, lines, err := tx.GetMovementForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditActionDelete,
			Entity:   "movement",
			EntityID: fmt.Sprintf("%d", id),
			OldValue: movementSnapshot(m, lines),
		}); err != nil {
			return err
		}
		if m.Type == MovementGRN || m.Type == MovementGIN {
			for _, line := range lines {
				delta := -line.Quantity
				if m.Type == MovementGIN {
					delta = line.Quantity
				}
				_, _, err := applyLineDelta(ctx, tx, lineDelta{
					VariationID: line.VariationID,
					Delta:       delta,
					Type:        m.Type,
					MovementID:  m.ID,
					TxDate:      time.Now().UTC(),
					ActorID:     actorID,
					Remarks:     fmt.Sprintf("reversal of %s", m.RefNo),
				})
				if err != nil {
					return err
				}
			}
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		return tx.SoftDeleteMovement(ctx, id)
	})
}

// TransitionReturn advances a supplier return through its approval
// workflow.
func (s *Service) TransitionReturn(ctx context.Context, id int64, next MovementStatus, actorID int64) (Movement, error) {
	status := next
	return s.UpdateMovement(ctx, id, UpdateMovementInput{Status: &status, ActorID: actorID})
}

type lineDelta struct {
	VariationID int64
	Delta       int64
	Type        MovementType
	MovementID  int64
	TxDate      time.Time
	ActorID     int64
	Remarks     string
}

// applyLineDelta moves one variation's balance under its row lock and
// appends the matching bin-card entry. The negative-balance guard runs
// here, against the locked value, regardless of earlier validation.
func applyLineDelta(ctx context.Context, tx TxRepository, d lineDelta) (BinCardEntry, int64, error) {
	rec, err := tx.GetStockForUpdate(ctx, d.VariationID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return BinCardEntry{}, 0, err
	}
	newBalance := rec.QuantityAvailable + d.Delta
	if newBalance < 0 {
		return BinCardEntry{}, 0, shared.InsufficientStockError{
			VariationID: d.VariationID,
			Requested:   -d.Delta,
			Available:   rec.QuantityAvailable,
		}
	}
	rec.QuantityAvailable = newBalance
	if err := tx.UpsertStock(ctx, rec); err != nil {
		return BinCardEntry{}, 0, err
	}
	entry := BinCardEntry{
		VariationID: d.VariationID,
		TxDate:      d.TxDate,
		Type:        d.Type,
		MovementID:  d.MovementID,
		Balance:     newBalance,
		ActorID:     d.ActorID,
		Remarks:     d.Remarks,
	}
	if d.Delta >= 0 {
		entry.QuantityIn = d.Delta
	} else {
		entry.QuantityOut = -d.Delta
	}
	entry, err = tx.AppendCardEntry(ctx, entry)
	if err != nil {
		return BinCardEntry{}, 0, err
	}
	return entry, newBalance, nil
}

func (s *Service) newHeader(typ MovementType, status MovementStatus, input CreateMovementInput) Movement {
	refNo := input.RefNo
	if refNo == "" {
		refNo = generateRefNo(typ)
	}
	txDate := input.TxDate
	if txDate.IsZero() {
		txDate = time.Now().UTC()
	}
	return Movement{
		RefNo:      refNo,
		Type:       typ,
		Status:     status,
		SupplierID: input.SupplierID,
		IssuedTo:   input.IssuedTo,
		TxDate:     txDate,
		Reason:     input.Reason,
		Remarks:    input.Remarks,
		CreatedBy:  input.ActorID,
	}
}

// claimRefNo reserves the reference number before the transaction opens;
// a replayed request surfaces as a conflict instead of a second posting.
func (s *Service) claimRefNo(ctx context.Context, typ MovementType, refNo string) (string, error) {
	if s.idempotency == nil {
		return "", nil
	}
	key := fmt.Sprintf("%s:%s", typ, refNo)
	if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) releaseRefNo(ctx context.Context, key string) {
	if s.idempotency != nil && key != "" {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func buildLines(inputs []LineInput) []MovementLine {
	lines := make([]MovementLine, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, MovementLine{
			VariationID: in.VariationID,
			Quantity:    in.Quantity,
			UnitCost:    in.UnitCost,
			Subtotal:    in.UnitCost.Mul(decimal.NewFromInt(in.Quantity)),
			Remarks:     in.Remarks,
		})
	}
	return lines
}

func lineRemarks(remarks string, header Movement) string {
	if remarks != "" {
		return remarks
	}
	return header.Reason
}

func movementSnapshot(m Movement, lines []MovementLine) map[string]any {
	lineMaps := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		lineMaps = append(lineMaps, map[string]any{
			"variation_id": line.VariationID,
			"qty":          line.Quantity,
			"unit_cost":    line.UnitCost.String(),
			"subtotal":     line.Subtotal.String(),
		})
	}
	return map[string]any{
		"ref_no":      m.RefNo,
		"type":        string(m.Type),
		"status":      string(m.Status),
		"supplier_id": m.SupplierID,
		"issued_to":   m.IssuedTo,
		"tx_date":     m.TxDate,
		"reason":      m.Reason,
		"remarks":     m.Remarks,
		"lines":       lineMaps,
	}
}

func generateRefNo(typ MovementType) string {
	return fmt.Sprintf("%s-%s", typ, strings.ToUpper(uuid.NewString()[:8]))
}

func valueOr(v *int64, fallback int64) int64 {
	if v != nil {
		return *v
	}
	return fallback
}

func stringOr(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
