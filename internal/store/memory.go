package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used in tests and local development. It
// enforces the same uniqueness constraints as Postgres, including returning
// ErrConflict on duplicate inserts, so race-recovery paths are exercisable
// without a database.
type Memory struct {
	mu          sync.Mutex
	users       map[uuid.UUID]User
	usernames   map[string]uuid.UUID
	images      map[uuid.UUID]StoredImage
	imageByHash map[string]uuid.UUID // owner|hash -> image id
	objectKeys  map[string]struct{}
	entries     map[string]CacheEntry
	nextEntryID int64
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[uuid.UUID]User),
		usernames:   make(map[string]uuid.UUID),
		images:      make(map[uuid.UUID]StoredImage),
		imageByHash: make(map[string]uuid.UUID),
		objectKeys:  make(map[string]struct{}),
		entries:     make(map[string]CacheEntry),
	}
}

func ownerHashKey(owner uuid.UUID, contentHash string) string {
	return owner.String() + "|" + contentHash
}

func (m *Memory) InsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernames[u.Username]; ok {
		return fmt.Errorf("insert user: %w", ErrConflict)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usernames[username]
	if !ok {
		return User{}, fmt.Errorf("user by username: %w", ErrNotFound)
	}
	return m.users[id], nil
}

func (m *Memory) UserByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user by id: %w", ErrNotFound)
	}
	return u, nil
}

func (m *Memory) InsertImage(_ context.Context, img StoredImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ownerHashKey(img.OwnerID, img.ContentHash)
	if _, ok := m.imageByHash[key]; ok {
		return fmt.Errorf("insert image: %w", ErrConflict)
	}
	if _, ok := m.objectKeys[img.ObjectKey]; ok {
		return fmt.Errorf("insert image: %w", ErrConflict)
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	m.images[img.ID] = img
	m.imageByHash[key] = img.ID
	m.objectKeys[img.ObjectKey] = struct{}{}
	return nil
}

func (m *Memory) ImageByOwnerAndHash(_ context.Context, owner uuid.UUID, contentHash string) (StoredImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.imageByHash[ownerHashKey(owner, contentHash)]
	if !ok {
		return StoredImage{}, fmt.Errorf("image by owner and hash: %w", ErrNotFound)
	}
	return m.images[id], nil
}

func (m *Memory) ImageByID(_ context.Context, id uuid.UUID) (StoredImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok {
		return StoredImage{}, fmt.Errorf("image by id: %w", ErrNotFound)
	}
	return img, nil
}

func (m *Memory) InsertCacheEntry(_ context.Context, e CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.Fingerprint]; ok {
		return fmt.Errorf("insert cache entry: %w", ErrConflict)
	}
	m.nextEntryID++
	e.ID = m.nextEntryID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entries[e.Fingerprint] = e
	return nil
}

func (m *Memory) CacheEntryByFingerprint(_ context.Context, fingerprint string) (CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fingerprint]
	if !ok {
		return CacheEntry{}, fmt.Errorf("cache entry by fingerprint: %w", ErrNotFound)
	}
	return e, nil
}
