// Package query drives a structured query end to end: resolve the
// image, consult the cache, call the model on a miss, and publish the
// completion so later identical queries are served without a model call.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptcache/internal/cache"
	"promptcache/internal/images"
	"promptcache/internal/llm"
	"promptcache/internal/metrics"
	"promptcache/internal/schema"
	"promptcache/pkg/logging"
)

// ErrModelUnavailable is returned when the model produced no usable
// output. Nothing is cached in that case.
var ErrModelUnavailable = errors.New("query: model returned no output")

type Orchestrator struct {
	cache  *cache.QueryCache
	images *images.Service
	client llm.Client
}

func NewOrchestrator(qc *cache.QueryCache, imgs *images.Service, client llm.Client) *Orchestrator {
	return &Orchestrator{cache: qc, images: imgs, client: client}
}

// Execute answers a structured query, preferring the cache. The second
// return reports whether the result came from the cache. imageID may be
// nil for text-only queries; a non-nil imageID must reference an image
// owned by owner.
//
// Identical concurrent misses may each call the model; the first
// completion to land is authoritative and every caller observes it.
func (o *Orchestrator) Execute(
	ctx context.Context,
	owner uuid.UUID,
	prompt string,
	fields []schema.FieldDefinition,
	imageID *uuid.UUID,
) (json.RawMessage, bool, error) {
	logger := logging.L(ctx)

	var imageHash string
	var imageData []byte
	var imageMime string

	if imageID != nil {
		img, data, err := o.images.Resolve(ctx, owner, *imageID)
		if err != nil {
			return nil, false, fmt.Errorf("resolve image: %w", err)
		}
		imageHash = img.ContentHash
		imageData = data
		imageMime = img.MimeType
	}

	result, reservation, err := o.cache.Lookup(ctx, prompt, fields, imageHash)
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if result != nil {
		logger.Info("query served from cache",
			zap.String("fingerprint", cache.Fingerprint(prompt, fields, imageHash)),
		)
		return result, true, nil
	}

	built, err := schema.Build(fields)
	if err != nil {
		return nil, false, fmt.Errorf("build schema: %w", err)
	}

	outcome, err := o.client.StructuredCompletion(ctx, &llm.StructuredRequest{
		Prompt:    prompt,
		ImageData: imageData,
		ImageMime: imageMime,
		Schema:    built,
	})
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("model call: %w", err)
	}
	metrics.ModelCallsTotal.WithLabelValues(outcome.Kind.String()).Inc()

	var payload json.RawMessage
	switch outcome.Kind {
	case llm.OutcomeStructured:
		payload = outcome.Structured
	case llm.OutcomeText:
		// Non-schema output still gets cached, wrapped so the response
		// shape stays a JSON object.
		wrapped, err := json.Marshal(map[string]string{"raw": outcome.Text})
		if err != nil {
			return nil, false, fmt.Errorf("wrap text output: %w", err)
		}
		payload = wrapped
		logger.Warn("model returned non-structured output",
			zap.Int("text_len", len(outcome.Text)),
		)
	case llm.OutcomeEmpty:
		return nil, false, ErrModelUnavailable
	default:
		return nil, false, fmt.Errorf("query: unknown outcome kind %d", outcome.Kind)
	}

	// Complete returns the durable entry, which is the concurrent
	// winner's result when this completion lost the insert race.
	final, err := o.cache.Complete(ctx, reservation, payload)
	if err != nil {
		return nil, false, fmt.Errorf("cache complete: %w", err)
	}
	return final, false, nil
}
