package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"promptcache/internal/schema"
)

func testSchema(t *testing.T) schema.JSONSchema {
	t.Helper()

	s, err := schema.Build([]schema.FieldDefinition{
		{Name: "title", Type: schema.FieldTypeString},
		{Name: "price", Type: schema.FieldTypeNumber},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestStructuredCompletionSuccess(t *testing.T) {
	t.Parallel()

	var gotReq providerChatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}

		gotAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}

		resp := providerChatResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "gpt-4o",
			Usage: &providerUsage{
				PromptTokens:     3,
				CompletionTokens: 2,
				TotalTokens:      5,
			},
		}
		resp.Choices = []providerChatChoice{{Index: 0, FinishReason: "stop"}}
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = `{"title":"lamp","price":12.5}`

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	out, err := client.StructuredCompletion(context.Background(), &StructuredRequest{
		Prompt: "describe the product",
		Schema: testSchema(t),
	})
	if err != nil {
		t.Fatalf("StructuredCompletion: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Fatalf("unexpected model: %s", gotReq.Model)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %#v", gotReq.ResponseFormat)
	}
	if !gotReq.ResponseFormat.JSONSchema.Strict {
		t.Fatalf("response format must be strict")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != RoleSystem {
		t.Fatalf("unexpected messages: %#v", gotReq.Messages)
	}
	if gotReq.Messages[1].Content[0].Text != "describe the product" {
		t.Fatalf("unexpected user content: %#v", gotReq.Messages[1].Content)
	}

	if out.Kind != OutcomeStructured {
		t.Fatalf("expected structured outcome, got %s", out.Kind)
	}
	if string(out.Structured) != `{"title":"lamp","price":12.5}` {
		t.Fatalf("unexpected structured payload: %s", out.Structured)
	}
}

func TestStructuredCompletionImagePart(t *testing.T) {
	t.Parallel()

	var gotReq providerChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}

		resp := providerChatResponse{Model: "gpt-4o"}
		resp.Choices = []providerChatChoice{{}}
		resp.Choices[0].Message.Content = `{"title":"chair"}`

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "key",
		Model:   "gpt-4o",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.StructuredCompletion(context.Background(), &StructuredRequest{
		Prompt:    "what is pictured?",
		ImageData: []byte{0xFF, 0xD8, 0xFF},
		ImageMime: "image/jpeg",
		Schema:    testSchema(t),
	})
	if err != nil {
		t.Fatalf("StructuredCompletion: %v", err)
	}

	parts := gotReq.Messages[1].Content
	if len(parts) != 2 || parts[1].Type != "image_url" {
		t.Fatalf("expected text + image parts, got %#v", parts)
	}
	if parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("expected base64 data URI, got %#v", parts[1].ImageURL)
	}
}

func TestStructuredCompletionValidationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be called for invalid request")
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "key",
		Model:   "gpt-4o",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.StructuredCompletion(context.Background(), &StructuredRequest{})
	if err == nil || !strings.Contains(err.Error(), "invalid request") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeOutcome(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    OutcomeKind
	}{
		{"json object", `{"a":1}`, OutcomeStructured},
		{"json object with whitespace", "  {\"a\":1}\n", OutcomeStructured},
		{"json array", `[1,2,3]`, OutcomeText},
		{"plain text", "I cannot answer that.", OutcomeText},
		{"malformed object", `{"a":`, OutcomeText},
		{"empty content", "", OutcomeEmpty},
		{"whitespace only", "  \n ", OutcomeEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &providerChatResponse{}
			resp.Choices = []providerChatChoice{{}}
			resp.Choices[0].Message.Content = tc.content

			out := normalizeOutcome(resp)
			if out.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, out.Kind)
			}
		})
	}

	t.Run("no choices", func(t *testing.T) {
		out := normalizeOutcome(&providerChatResponse{})
		if out.Kind != OutcomeEmpty {
			t.Fatalf("expected empty outcome, got %s", out.Kind)
		}
	})
}

func TestStructuredCompletionRetriesOn500(t *testing.T) {
	t.Parallel()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}

		resp := providerChatResponse{Model: "gpt-4o"}
		resp.Choices = []providerChatChoice{{}}
		resp.Choices[0].Message.Content = `{"title":"ok"}`

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "key",
		Model:   "gpt-4o",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	out, err := client.StructuredCompletion(context.Background(), &StructuredRequest{
		Prompt: "ping",
		Schema: testSchema(t),
	})
	if err != nil {
		t.Fatalf("StructuredCompletion: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if out.Kind != OutcomeStructured {
		t.Fatalf("expected structured outcome after retry, got %s", out.Kind)
	}
}

func TestStructuredCompletionUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "wrong",
		Model:   "gpt-4o",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.StructuredCompletion(context.Background(), &StructuredRequest{
		Prompt: "ping",
		Schema: testSchema(t),
	})
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected upstream error with provider message, got %v", err)
	}
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
