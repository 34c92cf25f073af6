package images

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"promptcache/internal/blob"
	"promptcache/internal/digest"
	"promptcache/internal/store"
)

func TestPutDedupIdempotent(t *testing.T) {
	rows := store.NewMemory()
	blobs := blob.NewMemoryStore()
	svc := NewService(rows, blobs)

	owner := uuid.New()
	data := []byte("png bytes here")

	first, err := svc.Put(context.Background(), owner, data, "image/png")
	require.NoError(t, err)

	second, err := svc.Put(context.Background(), owner, data, "image/png")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.ObjectKey, second.ObjectKey)
	require.Equal(t, 1, blobs.Len(), "duplicate upload must not write a second blob")
}

func TestPutDistinctOwnersDistinctKeys(t *testing.T) {
	svc := NewService(store.NewMemory(), blob.NewMemoryStore())

	data := []byte("shared bytes")
	a, err := svc.Put(context.Background(), uuid.New(), data, "image/png")
	require.NoError(t, err)
	b, err := svc.Put(context.Background(), uuid.New(), data, "image/png")
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.ObjectKey, b.ObjectKey)
	require.Equal(t, a.ContentHash, b.ContentHash)
}

func TestPutEmptyPayload(t *testing.T) {
	svc := NewService(store.NewMemory(), blob.NewMemoryStore())

	_, err := svc.Put(context.Background(), uuid.New(), nil, "image/png")
	require.ErrorIs(t, err, ErrEmptyImage)
}

// conflictOnce simulates losing the insert race exactly once: the insert
// fails with ErrConflict after the winner's row has been planted.
type conflictOnce struct {
	*store.Memory
	winner   store.StoredImage
	conflict bool
}

func (c *conflictOnce) InsertImage(ctx context.Context, img store.StoredImage) error {
	if !c.conflict {
		c.conflict = true
		if err := c.Memory.InsertImage(ctx, c.winner); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return c.Memory.InsertImage(ctx, img)
}

func TestPutConflictReturnsWinner(t *testing.T) {
	owner := uuid.New()
	data := []byte("raced bytes")

	mem := store.NewMemory()
	rows := &conflictOnce{
		Memory: mem,
		winner: store.StoredImage{
			ID:          uuid.New(),
			OwnerID:     owner,
			ObjectKey:   "images/winner",
			MimeType:    "image/png",
			ContentHash: hashOf(data),
		},
	}
	svc := NewService(rows, blob.NewMemoryStore())

	got, err := svc.Put(context.Background(), owner, data, "image/png")
	require.NoError(t, err)
	require.Equal(t, rows.winner.ID, got.ID, "loser must return the winner's record")
	require.Equal(t, "images/winner", got.ObjectKey)
}

func TestResolveOwnershipIsolation(t *testing.T) {
	rows := store.NewMemory()
	blobs := blob.NewMemoryStore()
	svc := NewService(rows, blobs)

	owner := uuid.New()
	img, err := svc.Put(context.Background(), owner, []byte("private"), "image/png")
	require.NoError(t, err)

	// The rightful owner resolves it.
	_, data, err := svc.Resolve(context.Background(), owner, img.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("private"), data)

	// Anyone else gets not-found, even though the image exists.
	_, _, err = svc.Resolve(context.Background(), uuid.New(), img.ID)
	require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestResolveMissingBlob(t *testing.T) {
	rows := store.NewMemory()
	svc := NewService(rows, blob.NewMemoryStore())

	owner := uuid.New()
	orphan := store.StoredImage{
		ID:          uuid.New(),
		OwnerID:     owner,
		ObjectKey:   "images/gone",
		ContentHash: hashOf([]byte("gone")),
	}
	require.NoError(t, rows.InsertImage(context.Background(), orphan))

	_, _, err := svc.Resolve(context.Background(), owner, orphan.ID)
	require.ErrorIs(t, err, blob.ErrObjectNotFound)
}

func hashOf(data []byte) string {
	return digest.Sum(data)
}
