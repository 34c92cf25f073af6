package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"promptcache/internal/schema"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// StructuredRequest asks the model to fill a JSON schema from a prompt,
// optionally grounded on an image.
type StructuredRequest struct {
	Prompt    string
	ImageData []byte // raw image bytes, inlined as a data URI when set
	ImageMime string
	Schema    schema.JSONSchema
}

func (r *StructuredRequest) Validate() error {
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	if len(r.ImageData) > 0 && r.ImageMime == "" {
		return errors.New("image mime type is required when image data is set")
	}
	if len(r.Schema.Properties) == 0 {
		return errors.New("schema must define at least one property")
	}
	return nil
}

// OutcomeKind tags what the model actually produced.
type OutcomeKind int

const (
	// OutcomeEmpty means the provider returned no content at all.
	OutcomeEmpty OutcomeKind = iota
	// OutcomeText means the content was not a JSON object.
	OutcomeText
	// OutcomeStructured means the content parsed as a JSON object.
	OutcomeStructured
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEmpty:
		return "empty"
	case OutcomeText:
		return "text"
	case OutcomeStructured:
		return "structured"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the normalized model output. Exactly one of Structured or
// Text is populated, selected by Kind.
type Outcome struct {
	Kind       OutcomeKind
	Structured json.RawMessage
	Text       string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Client interface {
	StructuredCompletion(ctx context.Context, req *StructuredRequest) (*Outcome, error)
}
