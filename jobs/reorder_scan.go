package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/stockpile-wms/stockpile/internal/jobs"
	"github.com/stockpile-wms/stockpile/internal/platform/cache"
)

// ReorderScanJob finds variations at or below their reorder level and caches
// the snapshot for cheap dashboard reads.
type ReorderScanJob struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{
		Pool:    pool,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReorderScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting reorder scan")

	items, err := j.scan(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	snapshot := cache.LowStockSnapshot{GeneratedAt: j.now(), Items: items}
	if j.Redis != nil {
		if err := cache.WriteLowStock(ctx, j.Redis, snapshot); err != nil {
			resultErr = err
			logger.Error("cache write failed", slog.Any("error", err))
			return resultErr
		}
	}

	for _, item := range items {
		logger.Warn("variation below reorder level",
			slog.Int64("variation_id", item.VariationID),
			slog.String("sku", item.SKU),
			slog.Int64("qty_available", item.QtyAvailable),
			slog.Int64("reorder_level", item.ReorderLevel),
		)
	}
	j.metrics().SetLowStock(len(items))

	logger.Info("completed reorder scan", slog.Int("low_stock", len(items)))
	return resultErr
}

func (j *ReorderScanJob) scan(ctx context.Context) ([]cache.LowStockItem, error) {
	if j.Pool == nil {
		return nil, errors.New("reorder scan: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT s.variation_id, v.sku, p.name, s.qty_available, s.reorder_level
		FROM stock_records s
		JOIN product_variations v ON v.id = s.variation_id
		JOIN products p ON p.id = v.product_id
		WHERE s.reorder_level > 0 AND s.qty_available <= s.reorder_level
		ORDER BY s.qty_available ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]cache.LowStockItem, 0)
	for rows.Next() {
		var item cache.LowStockItem
		if err := rows.Scan(&item.VariationID, &item.SKU, &item.ProductName, &item.QtyAvailable, &item.ReorderLevel); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskReorderScan))
}

func (j *ReorderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
