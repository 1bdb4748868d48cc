package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-wms/stockpile/internal/platform/db"
	"github.com/stockpile-wms/stockpile/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// Everything a movement touches runs through one implementation bound to
// a single tx: header, lines, stock row, bin card, audit log.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpdateMovementHeader(ctx context.Context, m Movement) error
	SoftDeleteMovement(ctx context.Context, id int64) error
	GetMovementForUpdate(ctx context.Context, id int64) (Movement, []MovementLine, error)
	InsertLines(ctx context.Context, movementID int64, lines []MovementLine) ([]MovementLine, error)
	DeleteLines(ctx context.Context, movementID int64) error
	GetStockForUpdate(ctx context.Context, variationID int64) (StockRecord, error)
	UpsertStock(ctx context.Context, rec StockRecord) error
	AppendCardEntry(ctx context.Context, entry BinCardEntry) (BinCardEntry, error)
	InsertAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

// GetMovement loads a header and its lines without locking.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, []MovementLine, error) {
	return getMovement(ctx, r.pool, id, false)
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, id int64) (Movement, []MovementLine, error) {
	return getMovement(ctx, r.tx, id, true)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getMovement(ctx context.Context, db queryer, id int64, forUpdate bool) (Movement, []MovementLine, error) {
	query := `SELECT id, ref_no, tx_type, status, COALESCE(supplier_id,0), issued_to, tx_date, reason, remarks, COALESCE(created_by,0), created_at, updated_at
FROM movements WHERE id=$1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var m Movement
	err := db.QueryRow(ctx, query, id).
		Scan(&m.ID, &m.RefNo, &m.Type, &m.Status, &m.SupplierID, &m.IssuedTo, &m.TxDate, &m.Reason, &m.Remarks, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, nil, shared.NotFoundError{Entity: "movement", ID: id}
		}
		return Movement{}, nil, err
	}
	rows, err := db.Query(ctx, `SELECT id, movement_id, variation_id, qty, unit_cost, subtotal, remarks FROM movement_lines WHERE movement_id=$1 ORDER BY id`, id)
	if err != nil {
		return Movement{}, nil, err
	}
	defer rows.Close()
	var lines []MovementLine
	for rows.Next() {
		var line MovementLine
		if err := rows.Scan(&line.ID, &line.MovementID, &line.VariationID, &line.Quantity, &line.UnitCost, &line.Subtotal, &line.Remarks); err != nil {
			return Movement{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Movement{}, nil, err
	}
	return m, lines, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO movements (ref_no, tx_type, status, supplier_id, issued_to, tx_date, reason, remarks, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		m.RefNo, string(m.Type), string(m.Status), nullInt(m.SupplierID), m.IssuedTo, m.TxDate, m.Reason, m.Remarks, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateMovementHeader(ctx context.Context, m Movement) error {
	tag, err := r.tx.Exec(ctx, `UPDATE movements SET status=$1, supplier_id=$2, issued_to=$3, tx_date=$4, reason=$5, remarks=$6, updated_at=NOW()
WHERE id=$7 AND deleted_at IS NULL`,
		string(m.Status), nullInt(m.SupplierID), m.IssuedTo, m.TxDate, m.Reason, m.Remarks, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundError{Entity: "movement", ID: m.ID}
	}
	return nil
}

func (r *txRepository) SoftDeleteMovement(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE movements SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundError{Entity: "movement", ID: id}
	}
	return nil
}

func (r *txRepository) InsertLines(ctx context.Context, movementID int64, lines []MovementLine) ([]MovementLine, error) {
	inserted := make([]MovementLine, 0, len(lines))
	for _, line := range lines {
		line.MovementID = movementID
		err := r.tx.QueryRow(ctx, `INSERT INTO movement_lines (movement_id, variation_id, qty, unit_cost, subtotal, remarks)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			movementID, line.VariationID, line.Quantity, line.UnitCost, line.Subtotal, line.Remarks).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, line)
	}
	return inserted, nil
}

func (r *txRepository) DeleteLines(ctx context.Context, movementID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM movement_lines WHERE movement_id=$1`, movementID)
	return err
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, variationID int64) (StockRecord, error) {
	var rec StockRecord
	err := r.tx.QueryRow(ctx, `SELECT variation_id, qty_available, reorder_level, location, updated_at FROM stock_records WHERE variation_id=$1 FOR UPDATE`, variationID).
		Scan(&rec.VariationID, &rec.QuantityAvailable, &rec.ReorderLevel, &rec.Location, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{VariationID: variationID}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, rec StockRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_records (variation_id, qty_available, reorder_level, location, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (variation_id) DO UPDATE SET qty_available=EXCLUDED.qty_available, updated_at=NOW()`,
		rec.VariationID, rec.QuantityAvailable, rec.ReorderLevel, rec.Location)
	return err
}

func (r *txRepository) AppendCardEntry(ctx context.Context, entry BinCardEntry) (BinCardEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO bin_card_entries (variation_id, tx_date, tx_type, movement_id, qty_in, qty_out, balance, actor_id, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		entry.VariationID, entry.TxDate, string(entry.Type), entry.MovementID, entry.QuantityIn, entry.QuantityOut, entry.Balance, nullInt(entry.ActorID), entry.Remarks).Scan(&entry.ID)
	return entry, err
}

func (r *txRepository) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAuditLog(ctx, r.tx, log)
}

// classifyPgError maps driver errors to the shared taxonomy: unique
// violations surface as duplicate-reference conflicts, and serialization
// failures that survive the retry loop surface as retriable conflicts
// rather than internal errors.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.ConflictError{Reason: "duplicate reference"}
		case "40001":
			return shared.ConflictError{Reason: "concurrent stock update, retry the request"}
		}
	}
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
