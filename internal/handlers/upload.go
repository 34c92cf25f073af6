package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"promptcache/internal/auth"
	"promptcache/internal/images"
	"promptcache/pkg/logging"
)

const maxUploadMemory = 10 << 20 // 10MB buffered in memory, rest spills to disk

// UploadHandler serves image uploads.
type UploadHandler struct {
	Images *images.Service
}

func NewUploadHandler(svc *images.Service) *UploadHandler {
	return &UploadHandler{Images: svc}
}

type uploadResponse struct {
	ImageID   string `json:"image_id"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
}

// Upload handles POST /api/upload-image. The image arrives as the
// multipart field "file". Re-uploading identical bytes returns the
// existing image.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	user, ok := auth.CurrentUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("read upload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	img, err := h.Images.Put(ctx, user.ID, data, mimeType)
	if err != nil {
		if errors.Is(err, images.ErrEmptyImage) {
			writeError(w, http.StatusBadRequest, "empty image")
			return
		}
		logger.Error("store image", zap.Error(err))
		writeError(w, http.StatusBadGateway, "image storage unavailable")
		return
	}

	logger.Info("image uploaded",
		zap.String("image_id", img.ID.String()),
		zap.String("content_hash", img.ContentHash),
		zap.Int("size_bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	writeJSON(w, http.StatusCreated, uploadResponse{
		ImageID:   img.ID.String(),
		ObjectKey: img.ObjectKey,
		MimeType:  img.MimeType,
	})
}
