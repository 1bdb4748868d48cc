package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LowStockItem is one entry of the cached reorder snapshot.
type LowStockItem struct {
	VariationID  int64  `json:"variation_id"`
	SKU          string `json:"sku"`
	ProductName  string `json:"product_name"`
	QtyAvailable int64  `json:"qty_available"`
	ReorderLevel int64  `json:"reorder_level"`
}

// LowStockSnapshot is what the reorder scan publishes and the API serves.
type LowStockSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Items       []LowStockItem `json:"items"`
}

// WriteLowStock publishes a snapshot under LowStockKey with LowStockTTL.
func WriteLowStock(ctx context.Context, client *redis.Client, snap LowStockSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("platform/cache: marshal low stock: %w", err)
	}
	if err := client.Set(ctx, LowStockKey, body, LowStockTTL).Err(); err != nil {
		return fmt.Errorf("platform/cache: write low stock: %w", err)
	}
	return nil
}

// ReadLowStock loads the latest snapshot. The second return value is false
// when no snapshot has been published yet or the previous one expired.
func ReadLowStock(ctx context.Context, client *redis.Client) (LowStockSnapshot, bool, error) {
	var snap LowStockSnapshot
	body, err := client.Get(ctx, LowStockKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("platform/cache: read low stock: %w", err)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, false, fmt.Errorf("platform/cache: decode low stock: %w", err)
	}
	return snap, true, nil
}
