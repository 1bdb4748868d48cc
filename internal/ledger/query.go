package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

// QueryService serves the read-only, joined projections over the ledger.
// It never mutates state and tolerates missing enrichment data: a
// supplier or variation name that cannot be resolved renders as
// "unknown" rather than failing the listing.
type QueryService struct {
	pool *pgxpool.Pool
}

// NewQueryService constructs QueryService.
func NewQueryService(pool *pgxpool.Pool) *QueryService {
	return &QueryService{pool: pool}
}

// MovementFilter narrows movement listings. Zero values mean "no filter".
type MovementFilter struct {
	Type       MovementType
	SupplierID int64
	From       time.Time
	To         time.Time
	Search     string
	SortBy     string
	SortDir    string
	Page       int
	PerPage    int
}

// MovementSummary is one row of the movement listing.
type MovementSummary struct {
	ID           int64           `json:"id"`
	RefNo        string          `json:"ref_no"`
	Type         MovementType    `json:"type"`
	Status       MovementStatus  `json:"status"`
	SupplierName string          `json:"supplier_name,omitempty"`
	IssuedTo     string          `json:"issued_to,omitempty"`
	TxDate       time.Time       `json:"tx_date"`
	LineCount    int             `json:"line_count"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Remarks      string          `json:"remarks,omitempty"`
}

// MovementDetail joins the header with lines and catalog names.
type MovementDetail struct {
	Header       Movement           `json:"header"`
	SupplierName string             `json:"supplier_name,omitempty"`
	Lines        []MovementLineView `json:"lines"`
}

// MovementLineView enriches a line with its variation and product names.
type MovementLineView struct {
	MovementLine
	VariationName string `json:"variation_name"`
	ProductName   string `json:"product_name"`
}

// BinCardFilter narrows bin-card listings for one variation.
type BinCardFilter struct {
	VariationID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// StockFilter narrows the stock overview listing.
type StockFilter struct {
	Search       string
	BelowReorder bool
	SortBy       string
	SortDir      string
	Page         int
	PerPage      int
}

// StockView enriches a stock record with catalog names.
type StockView struct {
	StockRecord
	VariationName string `json:"variation_name"`
	ProductName   string `json:"product_name"`
}

// ListMovements returns a filtered, paginated page of movement headers.
func (q *QueryService) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementSummary, shared.Pagination, error) {
	where := ` WHERE m.deleted_at IS NULL`
	args := []any{}
	argCount := 0

	if filter.Type != "" {
		argCount++
		where += ` AND m.tx_type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
	}
	if filter.SupplierID > 0 {
		argCount++
		where += ` AND m.supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.SupplierID)
	}
	if !filter.From.IsZero() {
		argCount++
		where += ` AND m.tx_date >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		where += ` AND m.tx_date <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}
	if filter.Search != "" {
		argCount++
		ph := strconv.Itoa(argCount)
		where += ` AND (m.ref_no ILIKE $` + ph + ` OR m.remarks ILIKE $` + ph + ` OR m.issued_to ILIKE $` + ph + ` OR s.name ILIKE $` + ph + `)`
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM movements m LEFT JOIN suppliers s ON s.id = m.supplier_id` + where
	if err := q.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}

	paging := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := `SELECT m.id, m.ref_no, m.tx_type, m.status, COALESCE(s.name, 'unknown'), m.issued_to, m.tx_date,
(SELECT COUNT(*) FROM movement_lines l WHERE l.movement_id = m.id),
COALESCE((SELECT SUM(l.subtotal) FROM movement_lines l WHERE l.movement_id = m.id), 0),
m.remarks
FROM movements m LEFT JOIN suppliers s ON s.id = m.supplier_id` + where +
		` ORDER BY ` + movementSortOrder(filter.SortBy, filter.SortDir)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, paging.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, paging.Offset())

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	summaries := []MovementSummary{}
	for rows.Next() {
		var m MovementSummary
		if err := rows.Scan(&m.ID, &m.RefNo, &m.Type, &m.Status, &m.SupplierName, &m.IssuedTo, &m.TxDate, &m.LineCount, &m.TotalValue, &m.Remarks); err != nil {
			return nil, shared.Pagination{}, err
		}
		summaries = append(summaries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return summaries, paging, nil
}

// GetMovementDetail loads one movement with enriched lines.
func (q *QueryService) GetMovementDetail(ctx context.Context, id int64) (MovementDetail, error) {
	var detail MovementDetail
	m := &detail.Header
	err := q.pool.QueryRow(ctx, `SELECT m.id, m.ref_no, m.tx_type, m.status, COALESCE(m.supplier_id,0), COALESCE(s.name, 'unknown'), m.issued_to, m.tx_date, m.reason, m.remarks, COALESCE(m.created_by,0), m.created_at, m.updated_at
FROM movements m LEFT JOIN suppliers s ON s.id = m.supplier_id
WHERE m.id=$1 AND m.deleted_at IS NULL`, id).
		Scan(&m.ID, &m.RefNo, &m.Type, &m.Status, &m.SupplierID, &detail.SupplierName, &m.IssuedTo, &m.TxDate, &m.Reason, &m.Remarks, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MovementDetail{}, shared.NotFoundError{Entity: "movement", ID: id}
		}
		return MovementDetail{}, err
	}

	rows, err := q.pool.Query(ctx, `SELECT l.id, l.movement_id, l.variation_id, l.qty, l.unit_cost, l.subtotal, l.remarks,
COALESCE(v.name, 'unknown'), COALESCE(p.name, 'unknown')
FROM movement_lines l
LEFT JOIN product_variations v ON v.id = l.variation_id
LEFT JOIN products p ON p.id = v.product_id
WHERE l.movement_id=$1 ORDER BY l.id`, id)
	if err != nil {
		return MovementDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line MovementLineView
		if err := rows.Scan(&line.ID, &line.MovementID, &line.VariationID, &line.Quantity, &line.UnitCost, &line.Subtotal, &line.Remarks, &line.VariationName, &line.ProductName); err != nil {
			return MovementDetail{}, err
		}
		detail.Lines = append(detail.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return MovementDetail{}, err
	}
	return detail, nil
}

// BinCard lists the append-only card for one variation in entry order.
func (q *QueryService) BinCard(ctx context.Context, filter BinCardFilter) ([]BinCardEntry, error) {
	if filter.VariationID <= 0 {
		return nil, shared.ValidationError{Field: "variation_id", Reason: "required"}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := q.pool.Query(ctx, `SELECT id, variation_id, tx_date, tx_type, movement_id, qty_in, qty_out, balance, COALESCE(actor_id,0), remarks
FROM bin_card_entries
WHERE variation_id=$1 AND tx_date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY id ASC
LIMIT $4`, filter.VariationID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []BinCardEntry{}
	for rows.Next() {
		var e BinCardEntry
		if err := rows.Scan(&e.ID, &e.VariationID, &e.TxDate, &e.Type, &e.MovementID, &e.QuantityIn, &e.QuantityOut, &e.Balance, &e.ActorID, &e.Remarks); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// StockOverview lists stock records with catalog names.
func (q *QueryService) StockOverview(ctx context.Context, filter StockFilter) ([]StockView, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Search != "" {
		argCount++
		ph := strconv.Itoa(argCount)
		where += ` AND (v.name ILIKE $` + ph + ` OR p.name ILIKE $` + ph + ` OR r.location ILIKE $` + ph + `)`
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.BelowReorder {
		where += ` AND r.qty_available <= r.reorder_level`
	}

	joins := ` FROM stock_records r
LEFT JOIN product_variations v ON v.id = r.variation_id
LEFT JOIN products p ON p.id = v.product_id`

	var total int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*)`+joins+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	paging := shared.NewPagination(filter.Page, filter.PerPage, total)

	query := `SELECT r.variation_id, r.qty_available, r.reorder_level, r.location, r.updated_at,
COALESCE(v.name, 'unknown'), COALESCE(p.name, 'unknown')` + joins + where +
		` ORDER BY ` + stockSortOrder(filter.SortBy, filter.SortDir)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, paging.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, paging.Offset())

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	views := []StockView{}
	for rows.Next() {
		var s StockView
		if err := rows.Scan(&s.VariationID, &s.QuantityAvailable, &s.ReorderLevel, &s.Location, &s.UpdatedAt, &s.VariationName, &s.ProductName); err != nil {
			return nil, shared.Pagination{}, err
		}
		views = append(views, s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return views, paging, nil
}

// movementSortOrder maps a requested sort key onto the allow-list.
// Unknown keys fall back to the default instead of erroring.
func movementSortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "ref_no":
		return "m.ref_no " + dir
	case "tx_date":
		return "m.tx_date " + dir
	case "type":
		return "m.tx_type " + dir
	case "supplier":
		return "s.name " + dir
	default:
		return "m.tx_date DESC, m.id DESC"
	}
}

func stockSortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "qty":
		return "r.qty_available " + dir
	case "updated_at":
		return "r.updated_at " + dir
	case "variation":
		return "v.name " + dir
	default:
		return "r.variation_id " + dir
	}
}
