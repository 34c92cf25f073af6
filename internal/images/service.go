// Package images is the content-addressed image layer: one row and one blob
// per (owner, content) pair, regardless of how many times the bytes arrive.
package images

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptcache/internal/blob"
	"promptcache/internal/digest"
	"promptcache/internal/store"
	"promptcache/pkg/logging"
)

var ErrEmptyImage = errors.New("images: empty image payload")

type Service struct {
	rows  store.ImageStore
	blobs blob.Store
}

func NewService(rows store.ImageStore, blobs blob.Store) *Service {
	return &Service{rows: rows, blobs: blobs}
}

// Put stores image bytes for an owner, deduplicating by content hash.
// Re-uploading identical bytes returns the existing record without touching
// the blob store. Two concurrent first uploads race on the (owner,
// content_hash) constraint; the loser re-reads and returns the winner's
// record. The loser's blob under its fresh key is an orphan, accepted cost
// of staying lock-free.
func (s *Service) Put(ctx context.Context, owner uuid.UUID, data []byte, mimeType string) (store.StoredImage, error) {
	if len(data) == 0 {
		return store.StoredImage{}, ErrEmptyImage
	}

	contentHash := digest.Sum(data)

	existing, err := s.rows.ImageByOwnerAndHash(ctx, owner, contentHash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.StoredImage{}, err
	}

	objectKey := "images/" + uuid.NewString()
	if err := s.blobs.Put(ctx, objectKey, data, mimeType); err != nil {
		return store.StoredImage{}, fmt.Errorf("store blob: %w", err)
	}

	img := store.StoredImage{
		ID:          uuid.New(),
		OwnerID:     owner,
		ObjectKey:   objectKey,
		MimeType:    mimeType,
		ContentHash: contentHash,
	}

	err = s.rows.InsertImage(ctx, img)
	if err == nil {
		logging.L(ctx).Info("image stored",
			zap.String("image_id", img.ID.String()),
			zap.String("object_key", objectKey),
			zap.Int("size", len(data)),
		)
		return img, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return store.StoredImage{}, err
	}

	// Lost the insert race: another identical upload landed first.
	winner, rerr := s.rows.ImageByOwnerAndHash(ctx, owner, contentHash)
	if rerr != nil {
		return store.StoredImage{}, fmt.Errorf("re-read after conflict: %w", rerr)
	}
	logging.L(ctx).Info("duplicate upload resolved by conflict re-read",
		zap.String("image_id", winner.ID.String()),
	)
	return winner, nil
}

// Resolve loads an image by id for an owner and fetches its bytes. Images
// owned by someone else are reported as not found, never as forbidden.
func (s *Service) Resolve(ctx context.Context, owner, imageID uuid.UUID) (store.StoredImage, []byte, error) {
	img, err := s.rows.ImageByID(ctx, imageID)
	if err != nil {
		return store.StoredImage{}, nil, err
	}
	if img.OwnerID != owner {
		return store.StoredImage{}, nil, fmt.Errorf("image %s: %w", imageID, store.ErrNotFound)
	}

	data, err := s.blobs.Get(ctx, img.ObjectKey)
	if err != nil {
		return store.StoredImage{}, nil, err
	}
	return img, data, nil
}
