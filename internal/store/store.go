// Package store is the transactional row-store boundary. Uniqueness
// constraints here are the only serialization mechanism for image dedup and
// cache-entry dedup; callers recover from ErrConflict by re-reading.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: unique constraint violation")
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// StoredImage is the row backing an uploaded image. ContentHash is unique
// per owner; ObjectKey is globally unique and never reassigned.
type StoredImage struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	ObjectKey   string
	MimeType    string
	ContentHash string
	CreatedAt   time.Time
}

// CacheEntry is one row of the global, append-only query ledger. A row with
// an empty ResponseJSON is a leftover reservation and must never be served
// as a hit.
type CacheEntry struct {
	ID           int64
	Fingerprint  string
	Prompt       string
	FieldsJSON   string
	ImageHash    *string
	ResponseJSON []byte
	CreatedAt    time.Time
}

type UserStore interface {
	InsertUser(ctx context.Context, u User) error
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id uuid.UUID) (User, error)
}

type ImageStore interface {
	InsertImage(ctx context.Context, img StoredImage) error
	ImageByOwnerAndHash(ctx context.Context, owner uuid.UUID, contentHash string) (StoredImage, error)
	ImageByID(ctx context.Context, id uuid.UUID) (StoredImage, error)
}

type CacheStore interface {
	InsertCacheEntry(ctx context.Context, e CacheEntry) error
	CacheEntryByFingerprint(ctx context.Context, fingerprint string) (CacheEntry, error)
}

type Store interface {
	UserStore
	ImageStore
	CacheStore
}
