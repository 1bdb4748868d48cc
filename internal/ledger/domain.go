package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementGRN is a goods received note, increasing stock.
	MovementGRN MovementType = "GRN"
	// MovementGIN is a goods issued note, decreasing stock.
	MovementGIN MovementType = "GIN"
	// MovementReturn is a supplier return document. Returns carry an
	// approval workflow and never touch the stock store or bin card.
	MovementReturn MovementType = "RETURN"
)

// MovementStatus tracks the document lifecycle. GRN/GIN post immediately;
// the remaining statuses belong to the return approval workflow.
type MovementStatus string

const (
	StatusPosted    MovementStatus = "POSTED"
	StatusPending   MovementStatus = "PENDING"
	StatusApproved  MovementStatus = "APPROVED"
	StatusRejected  MovementStatus = "REJECTED"
	StatusCompleted MovementStatus = "COMPLETED"
	StatusCancelled MovementStatus = "CANCELLED"
)

// returnTransitions is the allowed status graph for supplier returns.
var returnTransitions = map[MovementStatus][]MovementStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a return may move from one status to the next.
func CanTransition(from, to MovementStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StockRecord is the single authoritative balance row per variation.
// Created lazily on the first movement affecting a variation.
type StockRecord struct {
	VariationID       int64     `json:"variation_id"`
	QuantityAvailable int64     `json:"quantity_available"`
	ReorderLevel      int64     `json:"reorder_level"`
	Location          string    `json:"location"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BinCardEntry is one append-only ledger row. For a fixed variation,
// entries ordered by ID satisfy balance[n] = balance[n-1] + in[n] - out[n].
type BinCardEntry struct {
	ID          int64        `json:"id"`
	VariationID int64        `json:"variation_id"`
	TxDate      time.Time    `json:"tx_date"`
	Type        MovementType `json:"type"`
	MovementID  int64        `json:"movement_id"`
	QuantityIn  int64        `json:"quantity_in"`
	QuantityOut int64        `json:"quantity_out"`
	Balance     int64        `json:"balance"`
	ActorID     int64        `json:"actor_id"`
	Remarks     string       `json:"remarks"`
}

// Movement is the header of a GRN, GIN or supplier return.
type Movement struct {
	ID         int64          `json:"id"`
	RefNo      string         `json:"ref_no"`
	Type       MovementType   `json:"type"`
	Status     MovementStatus `json:"status"`
	SupplierID int64          `json:"supplier_id,omitempty"`
	IssuedTo   string         `json:"issued_to,omitempty"`
	TxDate     time.Time      `json:"tx_date"`
	Reason     string         `json:"reason,omitempty"`
	Remarks    string         `json:"remarks,omitempty"`
	CreatedBy  int64          `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MovementLine is one item on a movement.
type MovementLine struct {
	ID          int64           `json:"id"`
	MovementID  int64           `json:"movement_id"`
	VariationID int64           `json:"variation_id"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Remarks     string          `json:"remarks,omitempty"`
}

// MovementResult is returned by the create operations: the persisted
// header and lines, plus the bin-card entries and post-movement balances
// for stock-affecting movements.
type MovementResult struct {
	Header   Movement       `json:"header"`
	Lines    []MovementLine `json:"lines"`
	Entries  []BinCardEntry `json:"entries,omitempty"`
	Balances map[int64]int64 `json:"balances,omitempty"`
}

// ErrStockNotFound indicates a missing stock record row.
var ErrStockNotFound = errors.New("ledger: stock record not found")

// ErrMovementDeleted indicates the header was soft-deleted.
var ErrMovementDeleted = errors.New("ledger: movement deleted")
