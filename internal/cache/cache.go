package cache

import (
	"context"
	"errors"
	"time"
)

// Cache keeps serialized queue snapshots close to the display surface.
// Snapshots are tiny and short-lived; a miss just recomputes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")

func SnapshotKey(locationID string) string {
	return "snapshot:" + locationID
}
