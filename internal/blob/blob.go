// Package blob is the put/get-by-key byte store boundary. Keys are
// write-once; a duplicate write under a fresh key is a harmless orphan.
package blob

import (
	"context"
	"errors"
)

// ErrObjectNotFound marks a missing key. Any other error from Get/Put means
// the backing store is unreachable; the caller decides whether to retry.
var ErrObjectNotFound = errors.New("blob: object not found")

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
