package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-wms/stockpile/internal/masterdata/shared"
	internalShared "github.com/stockpile-wms/stockpile/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Delete(ctx context.Context, id int64) error

	ListVariations(ctx context.Context, filters shared.ListFilters) ([]Variation, int, error)
	GetVariation(ctx context.Context, id int64) (Variation, error)
	CreateVariation(ctx context.Context, v Variation) (Variation, error)
	UpdateVariation(ctx context.Context, id int64, v Variation) error
	DeleteVariation(ctx context.Context, id int64) error
	VariationsExist(ctx context.Context, ids []int64) (map[int64]bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	query := `SELECT id, code, name, COALESCE(brand_id,0), is_active, created_at, updated_at FROM products WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM products WHERE deleted_at IS NULL`
	countArgs := []interface{}{}
	if filters.Search != "" {
		countArgs = append(countArgs, "%"+filters.Search+"%")
		countQuery += ` AND (name ILIKE $1 OR code ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)

	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.BrandID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, code, name, COALESCE(brand_id,0), is_active, created_at, updated_at FROM products WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.BrandID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, internalShared.NotFoundError{Entity: "product", ID: id}
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO products (code, name, brand_id, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		product.Code, product.Name, nullInt(product.BrandID), product.IsActive, now, now).Scan(&product.ID)
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET code = $1, name = $2, brand_id = $3, is_active = $4, updated_at = NOW() WHERE id = $5 AND deleted_at IS NULL`,
		product.Code, product.Name, nullInt(product.BrandID), product.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}

func (r *repository) ListVariations(ctx context.Context, filters shared.ListFilters) ([]Variation, int, error) {
	query := `SELECT id, product_id, sku, name, price, is_active, created_at, updated_at FROM product_variations WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 0

	if filters.ProductID != nil {
		argCount++
		query += ` AND product_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.ProductID)
	}
	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM product_variations WHERE deleted_at IS NULL`
	countArgs := []interface{}{}
	countArgCount := 0
	if filters.ProductID != nil {
		countArgCount++
		countQuery += ` AND product_id = $` + strconv.Itoa(countArgCount)
		countArgs = append(countArgs, *filters.ProductID)
	}
	if filters.Search != "" {
		countArgCount++
		countQuery += ` AND (name ILIKE $` + strconv.Itoa(countArgCount) + ` OR sku ILIKE $` + strconv.Itoa(countArgCount) + `)`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY sku ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Variation
	for rows.Next() {
		var v Variation
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, v)
	}
	return result, total, rows.Err()
}

func (r *repository) GetVariation(ctx context.Context, id int64) (Variation, error) {
	var v Variation
	err := r.db.QueryRow(ctx, `SELECT id, product_id, sku, name, price, is_active, created_at, updated_at FROM product_variations WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variation{}, internalShared.NotFoundError{Entity: "variation", ID: id}
	}
	return v, err
}

func (r *repository) CreateVariation(ctx context.Context, v Variation) (Variation, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO product_variations (product_id, sku, name, price, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		v.ProductID, v.SKU, v.Name, v.Price, v.IsActive, now, now).Scan(&v.ID)
	if err != nil {
		return Variation{}, err
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	return v, nil
}

func (r *repository) UpdateVariation(ctx context.Context, id int64, v Variation) error {
	tag, err := r.db.Exec(ctx, `UPDATE product_variations SET sku = $1, name = $2, price = $3, is_active = $4, updated_at = NOW() WHERE id = $5 AND deleted_at IS NULL`,
		v.SKU, v.Name, v.Price, v.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundError{Entity: "variation", ID: id}
	}
	return nil
}

func (r *repository) DeleteVariation(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE product_variations SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundError{Entity: "variation", ID: id}
	}
	return nil
}

// VariationsExist resolves all ids in a single round trip. Soft-deleted
// variations count as absent.
func (r *repository) VariationsExist(ctx context.Context, ids []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM product_variations WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
