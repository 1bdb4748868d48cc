package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service serves the read-only audit timeline.
type Service struct {
	pool *pgxpool.Pool
}

// NewService builds the audit timeline service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Timeline lists audit entries newest first with has-next paging. The
// fetch overshoots by one row to detect the next page without a count.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.pool == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	query := `SELECT occurred_at, COALESCE(actor_id,0), action, entity, entity_id, old_value, new_value FROM audit_logs WHERE 1=1`
	args := []any{}
	argCount := 0
	if !filters.From.IsZero() {
		argCount++
		query += ` AND occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		query += ` AND occurred_at <= $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}
	if filters.ActorID > 0 {
		argCount++
		query += ` AND actor_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.ActorID)
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		argCount++
		query += ` AND entity = $` + strconv.Itoa(argCount)
		args = append(args, entity)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		argCount++
		query += ` AND action = $` + strconv.Itoa(argCount)
		args = append(args, action)
	}
	query += ` ORDER BY occurred_at DESC, id DESC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, pageSize+1)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	resultRows := make([]TimelineRow, 0, pageSize)
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.OldValue, &row.NewValue); err != nil {
			return Result{}, err
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	hasNext := len(resultRows) > pageSize
	if hasNext {
		resultRows = resultRows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: resultRows, Paging: paging}, nil
}
