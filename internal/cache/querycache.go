package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"promptcache/internal/schema"
	"promptcache/internal/store"
	"promptcache/pkg/logging"
)

// QueryCache memoizes structured-query results against the durable ledger.
// Fingerprints are global, not owner-scoped: two owners asking the same
// question about the same image share one entry. That matches the original
// policy; see DESIGN.md before changing it.
type QueryCache struct {
	rows store.CacheStore
	hot  HotCache
	ttl  time.Duration
}

func New(rows store.CacheStore, hot HotCache, ttl time.Duration) *QueryCache {
	return &QueryCache{rows: rows, hot: hot, ttl: ttl}
}

// Reservation is the in-memory intent to complete a cache entry once the
// model has answered. No row exists until Complete; a crash before then
// leaves nothing dangling.
type Reservation struct {
	fingerprint string
	prompt      string
	fields      []schema.FieldDefinition
	imageHash   string
}

// Fingerprint exposes the key the reservation will be completed under.
func (r *Reservation) Fingerprint() string {
	return r.fingerprint
}

// Lookup consults the hot layer then the ledger. On a hit it returns the
// stored result and no reservation; on a miss it returns a reservation for
// the caller to complete. A ledger row with an empty result is treated as a
// miss: it is a reservation in progress, never a servable hit.
func (c *QueryCache) Lookup(
	ctx context.Context,
	prompt string,
	fields []schema.FieldDefinition,
	imageHash string,
) (json.RawMessage, *Reservation, error) {
	fingerprint := Fingerprint(prompt, fields, imageHash)

	if c.hot != nil {
		value, ok, err := c.hot.Get(ctx, fingerprint)
		if err != nil {
			// Hot layer is best-effort: log and fall through to the ledger.
			logging.L(ctx).Warn("hot cache lookup failed", zap.Error(err))
		} else if ok && len(value) > 0 {
			return value, nil, nil
		}
	}

	entry, err := c.rows.CacheEntryByFingerprint(ctx, fingerprint)
	if err == nil && len(entry.ResponseJSON) > 0 {
		c.populateHot(ctx, fingerprint, entry.ResponseJSON)
		return entry.ResponseJSON, nil, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	return nil, &Reservation{
		fingerprint: fingerprint,
		prompt:      prompt,
		fields:      fields,
		imageHash:   imageHash,
	}, nil
}

// Complete persists the reservation's entry and returns the authoritative
// result: normally the one passed in, but if a concurrent completion for
// the same fingerprint landed first, the insert conflicts and the earlier
// result wins. Callers must return Complete's result, not their own, so
// concurrent identical requests never observe divergent answers.
func (c *QueryCache) Complete(ctx context.Context, res *Reservation, result json.RawMessage) (json.RawMessage, error) {
	fieldsJSON, err := json.Marshal(res.fields)
	if err != nil {
		return nil, fmt.Errorf("marshal field definitions: %w", err)
	}

	entry := store.CacheEntry{
		Fingerprint:  res.fingerprint,
		Prompt:       res.prompt,
		FieldsJSON:   string(fieldsJSON),
		ResponseJSON: result,
	}
	if res.imageHash != "" {
		h := res.imageHash
		entry.ImageHash = &h
	}

	err = c.rows.InsertCacheEntry(ctx, entry)
	if err == nil {
		c.populateHot(ctx, res.fingerprint, result)
		return result, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, err
	}

	// Another completion landed first; its result is authoritative.
	winner, rerr := c.rows.CacheEntryByFingerprint(ctx, res.fingerprint)
	if rerr != nil {
		return nil, fmt.Errorf("re-read after conflict: %w", rerr)
	}
	logging.L(ctx).Info("cache completion lost race, using stored result",
		zap.String("fingerprint", res.fingerprint),
	)
	c.populateHot(ctx, res.fingerprint, winner.ResponseJSON)
	return winner.ResponseJSON, nil
}

func (c *QueryCache) populateHot(ctx context.Context, fingerprint string, value []byte) {
	if c.hot == nil {
		return
	}
	if err := c.hot.Set(ctx, fingerprint, value, c.ttl); err != nil {
		logging.L(ctx).Warn("hot cache set failed", zap.Error(err))
	}
}
