// Package cache memoizes structured-query results. The durable ledger lives
// in the row store keyed by fingerprint; an optional TTL'd hot layer
// (memory or Redis) accelerates repeat reads but is never authoritative.
package cache

import (
	"encoding/json"

	"promptcache/internal/digest"
	"promptcache/internal/schema"
)

// fingerprintPayload is the canonical representation hashed into a
// fingerprint. Keys marshal in struct order, which is fixed, so the encoding
// is stable. A nil ImageHash encodes as JSON null, keeping "no image"
// distinct from every possible image hash.
type fingerprintPayload struct {
	Fields    []schema.FieldDefinition `json:"fields"`
	ImageHash *string                  `json:"image_hash"`
	Prompt    string                   `json:"prompt"`
}

// Fingerprint derives the cache key for (prompt, ordered field list,
// optional image content hash). Identical inputs, and only identical inputs,
// produce identical fingerprints. Field order matters: the raw ordered list
// is hashed, not the deduplicated schema.
func Fingerprint(prompt string, fields []schema.FieldDefinition, imageHash string) string {
	payload := fingerprintPayload{
		Fields: fields,
		Prompt: prompt,
	}
	if imageHash != "" {
		payload.ImageHash = &imageHash
	}
	if payload.Fields == nil {
		payload.Fields = []schema.FieldDefinition{}
	}

	// Marshal of a struct with string/slice fields cannot fail.
	raw, _ := json.Marshal(payload)
	return digest.Sum(raw)
}
