package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptcache/internal/auth"
	"promptcache/internal/metrics"
	"promptcache/internal/query"
	"promptcache/internal/schema"
	"promptcache/internal/store"
	"promptcache/pkg/logging"
)

const (
	maxPromptLen = 4000
	maxFieldsLen = 50
)

// QueryHandler serves structured queries.
type QueryHandler struct {
	Orchestrator *query.Orchestrator
}

func NewQueryHandler(orch *query.Orchestrator) *QueryHandler {
	return &QueryHandler{Orchestrator: orch}
}

type queryRequest struct {
	Prompt  string                   `json:"prompt"`
	Fields  []schema.FieldDefinition `json:"fields"`
	ImageID *string                  `json:"image_id,omitempty"`
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
	Cached bool            `json:"cached"`
}

// StructuredQuery handles POST /api/structured-query.
func (h *QueryHandler) StructuredQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	user, ok := auth.CurrentUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Prompt == "" || len(req.Prompt) > maxPromptLen {
		writeError(w, http.StatusBadRequest, "prompt must be 1 to 4000 characters")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}
	if len(req.Fields) > maxFieldsLen {
		writeError(w, http.StatusBadRequest, "too many fields")
		return
	}
	for _, f := range req.Fields {
		if err := f.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var imageID *uuid.UUID
	if req.ImageID != nil {
		parsed, err := uuid.Parse(*req.ImageID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid image_id")
			return
		}
		imageID = &parsed
	}

	result, cached, err := h.Orchestrator.Execute(ctx, user.ID, req.Prompt, req.Fields, imageID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "image not found")
		case errors.Is(err, query.ErrModelUnavailable):
			writeError(w, http.StatusBadGateway, "model returned no output")
		default:
			logger.Error("structured query failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream failure")
		}
		return
	}

	if cached {
		metrics.QueryCacheHitsTotal.Inc()
	}

	logger.Info("structured query completed",
		zap.Bool("cache_hit", cached),
		zap.Int("field_count", len(req.Fields)),
		zap.Bool("has_image", imageID != nil),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, queryResponse{
		Result: result,
		Cached: cached,
	})
}
