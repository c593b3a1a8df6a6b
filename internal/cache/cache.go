package cache

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract the gateway needs: connection
// snapshot mirroring and short-lived relayed-message markers.
type Cache interface {
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}
