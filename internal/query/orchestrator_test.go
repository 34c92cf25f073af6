package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"promptcache/internal/blob"
	"promptcache/internal/cache"
	"promptcache/internal/images"
	"promptcache/internal/llm"
	"promptcache/internal/schema"
	"promptcache/internal/store"
)

type mockClient struct {
	mu      sync.Mutex
	calls   int32
	lastReq *llm.StructuredRequest
	respond func(req *llm.StructuredRequest) (*llm.Outcome, error)
}

func (m *mockClient) StructuredCompletion(_ context.Context, req *llm.StructuredRequest) (*llm.Outcome, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	return m.respond(req)
}

func structuredClient(payload string) *mockClient {
	return &mockClient{
		respond: func(*llm.StructuredRequest) (*llm.Outcome, error) {
			return &llm.Outcome{
				Kind:       llm.OutcomeStructured,
				Structured: json.RawMessage(payload),
			}, nil
		},
	}
}

func newTestOrchestrator(client llm.Client) (*Orchestrator, *store.Memory, *blob.MemoryStore) {
	rows := store.NewMemory()
	blobs := blob.NewMemoryStore()
	return NewOrchestrator(
		cache.New(rows, nil, time.Minute),
		images.NewService(rows, blobs),
		client,
	), rows, blobs
}

func testFields() []schema.FieldDefinition {
	return []schema.FieldDefinition{
		{Name: "title", Type: schema.FieldTypeString},
		{Name: "price", Type: schema.FieldTypeNumber},
	}
}

func TestExecuteMissThenHit(t *testing.T) {
	t.Parallel()

	client := structuredClient(`{"title":"lamp","price":12.5}`)
	orch, _, _ := newTestOrchestrator(client)
	ctx := context.Background()
	owner := uuid.New()

	result, cached, err := orch.Execute(ctx, owner, "describe", testFields(), nil)
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `{"title":"lamp","price":12.5}`, string(result))

	again, cached, err := orch.Execute(ctx, owner, "describe", testFields(), nil)
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, string(result), string(again))

	require.EqualValues(t, 1, atomic.LoadInt32(&client.calls))
}

func TestExecuteTextFallbackWrapped(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		respond: func(*llm.StructuredRequest) (*llm.Outcome, error) {
			return &llm.Outcome{Kind: llm.OutcomeText, Text: "I cannot comply."}, nil
		},
	}
	orch, _, _ := newTestOrchestrator(client)
	ctx := context.Background()

	result, cached, err := orch.Execute(ctx, uuid.New(), "describe", testFields(), nil)
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `{"raw":"I cannot comply."}`, string(result))

	// The wrapped fallback is cached like any other result.
	again, cached, err := orch.Execute(ctx, uuid.New(), "describe", testFields(), nil)
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, string(result), string(again))
}

func TestExecuteEmptyOutcomeNotCached(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		respond: func(*llm.StructuredRequest) (*llm.Outcome, error) {
			return &llm.Outcome{Kind: llm.OutcomeEmpty}, nil
		},
	}
	orch, rows, _ := newTestOrchestrator(client)
	ctx := context.Background()

	_, _, err := orch.Execute(ctx, uuid.New(), "describe", testFields(), nil)
	require.ErrorIs(t, err, ErrModelUnavailable)

	fp := cache.Fingerprint("describe", testFields(), "")
	_, err = rows.CacheEntryByFingerprint(ctx, fp)
	require.ErrorIs(t, err, store.ErrNotFound)

	// A later retry calls the model again rather than serving a failure.
	_, _, err = orch.Execute(ctx, uuid.New(), "describe", testFields(), nil)
	require.ErrorIs(t, err, ErrModelUnavailable)
	require.EqualValues(t, 2, atomic.LoadInt32(&client.calls))
}

func TestExecuteModelErrorPropagates(t *testing.T) {
	t.Parallel()

	upstream := errors.New("upstream exploded")
	client := &mockClient{
		respond: func(*llm.StructuredRequest) (*llm.Outcome, error) {
			return nil, upstream
		},
	}
	orch, _, _ := newTestOrchestrator(client)

	_, _, err := orch.Execute(context.Background(), uuid.New(), "describe", testFields(), nil)
	require.ErrorIs(t, err, upstream)
}

func TestExecuteWithImage(t *testing.T) {
	t.Parallel()

	client := structuredClient(`{"title":"chair"}`)
	orch, rows, blobs := newTestOrchestrator(client)
	ctx := context.Background()
	owner := uuid.New()

	imgSvc := images.NewService(rows, blobs)
	img, err := imgSvc.Put(ctx, owner, []byte("jpeg bytes"), "image/jpeg")
	require.NoError(t, err)

	fields := []schema.FieldDefinition{{Name: "title", Type: schema.FieldTypeString}}

	result, cached, err := orch.Execute(ctx, owner, "what is this?", fields, &img.ID)
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `{"title":"chair"}`, string(result))

	client.mu.Lock()
	req := client.lastReq
	client.mu.Unlock()
	require.Equal(t, []byte("jpeg bytes"), req.ImageData)
	require.Equal(t, "image/jpeg", req.ImageMime)

	// Same prompt with and without the image are distinct cache entries.
	_, cached, err = orch.Execute(ctx, owner, "what is this?", fields, nil)
	require.NoError(t, err)
	require.False(t, cached)

	_, cached, err = orch.Execute(ctx, owner, "what is this?", fields, &img.ID)
	require.NoError(t, err)
	require.True(t, cached)
}

func TestExecuteUnknownImage(t *testing.T) {
	t.Parallel()

	client := structuredClient(`{"title":"x"}`)
	orch, _, _ := newTestOrchestrator(client)

	missing := uuid.New()
	_, _, err := orch.Execute(context.Background(), uuid.New(), "describe", testFields(), &missing)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.EqualValues(t, 0, atomic.LoadInt32(&client.calls))
}

func TestExecuteForeignImageRejected(t *testing.T) {
	t.Parallel()

	client := structuredClient(`{"title":"x"}`)
	orch, rows, blobs := newTestOrchestrator(client)
	ctx := context.Background()

	imgSvc := images.NewService(rows, blobs)
	img, err := imgSvc.Put(ctx, uuid.New(), []byte("data"), "image/png")
	require.NoError(t, err)

	_, _, err = orch.Execute(ctx, uuid.New(), "describe", testFields(), &img.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecuteInvalidFields(t *testing.T) {
	t.Parallel()

	client := structuredClient(`{"title":"x"}`)
	orch, _, _ := newTestOrchestrator(client)

	bad := []schema.FieldDefinition{{Name: "flag", Type: "boolean"}}
	_, _, err := orch.Execute(context.Background(), uuid.New(), "describe", bad, nil)
	require.ErrorIs(t, err, schema.ErrUnsupportedFieldType)
}

func TestExecuteConcurrentSameResult(t *testing.T) {
	t.Parallel()

	// Each call produces a distinct payload so divergence would show up.
	var seq int32
	client := &mockClient{
		respond: func(*llm.StructuredRequest) (*llm.Outcome, error) {
			n := atomic.AddInt32(&seq, 1)
			payload, _ := json.Marshal(map[string]int32{"n": n})
			return &llm.Outcome{Kind: llm.OutcomeStructured, Structured: payload}, nil
		},
	}
	orch, rows, _ := newTestOrchestrator(client)
	ctx := context.Background()
	owner := uuid.New()

	const workers = 16
	results := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := orch.Execute(ctx, owner, "race", testFields(), nil)
			results[i], errs[i] = string(res), err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}

	entry, err := rows.CacheEntryByFingerprint(ctx, cache.Fingerprint("race", testFields(), ""))
	require.NoError(t, err)
	require.Equal(t, results[0], string(entry.ResponseJSON))
}
