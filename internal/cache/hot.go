package cache

import (
	"context"
	"time"
)

// HotCache is the optional read-through layer in front of the durable
// ledger. Implementations are best-effort: errors are logged by the caller
// and treated as misses.
type HotCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error
}
