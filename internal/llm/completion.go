package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxRequestSize = 20 * 1024 * 1024 // 20MB total JSON payload, images inflate fast
	maxPromptSize  = 512 * 1024       // 512KB prompt text

	schemaName = "structured_output"

	systemInstruction = "Extract the requested fields from the user input. " +
		"Respond with a single JSON object that matches the provided schema exactly. " +
		"Do not include any text outside the JSON object."
)

func (c *client) StructuredCompletion(parentCtx context.Context, req *StructuredRequest) (*Outcome, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("llmclient: request is nil")
	}

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("llmclient: invalid request: %w", err)
	}

	if len(req.Prompt) > maxPromptSize {
		return nil, fmt.Errorf(
			"llmclient: prompt too large (%d bytes, max %d)",
			len(req.Prompt), maxPromptSize,
		)
	}

	c.logger.Debug("llm request starting",
		zap.String("model", c.cfg.Model),
		zap.Int("schema_fields", len(req.Schema.Properties)),
		zap.Bool("has_image", len(req.ImageData) > 0),
	)

	// Per-request timeout (0 = only use parentCtx)
	var ctx context.Context
	var cancel context.CancelFunc
	if c.cfg.UpstreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}
	defer cancel()

	pReq := c.buildProviderRequest(req)

	bodyBytes, err := json.Marshal(pReq)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal request: %w", err)
	}

	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf(
			"llmclient: request too large (%d bytes, max %d)",
			len(bodyBytes), maxRequestSize,
		)
	}

	url := c.cfg.BaseURL + "/v1/chat/completions"

	// doOnce builds a fresh *http.Request for each attempt
	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llmclient: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, bodyBytes, doOnce)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)

		// Try to parse structured error
		var perr providerErrorResponse
		if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
			c.logger.Error("llm provider error",
				zap.Int("status", resp.StatusCode),
				zap.String("error_type", perr.Error.Type),
				zap.String("error_message", perr.Error.Message),
			)
			return nil, fmt.Errorf("llmclient: upstream %d: %s (%s)",
				resp.StatusCode, perr.Error.Message, perr.Error.Type)
		}

		c.logger.Error("llm upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, fmt.Errorf("llmclient: upstream %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var pResp providerChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&pResp); err != nil {
		return nil, fmt.Errorf("llmclient: decode upstream response: %w", err)
	}

	out := normalizeOutcome(&pResp)

	usage := Usage{}
	if pResp.Usage != nil {
		usage = Usage{
			PromptTokens:     pResp.Usage.PromptTokens,
			CompletionTokens: pResp.Usage.CompletionTokens,
			TotalTokens:      pResp.Usage.TotalTokens,
		}
	}

	c.logger.Info("llm request completed",
		zap.String("model", pResp.Model),
		zap.String("outcome", out.Kind.String()),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

func (c *client) buildProviderRequest(req *StructuredRequest) *providerChatRequest {
	userParts := []providerContentPart{
		{Type: "text", Text: req.Prompt},
	}

	if len(req.ImageData) > 0 {
		dataURI := "data:" + req.ImageMime + ";base64," +
			base64.StdEncoding.EncodeToString(req.ImageData)
		userParts = append(userParts, providerContentPart{
			Type:     "image_url",
			ImageURL: &providerImageURL{URL: dataURI},
		})
	}

	return &providerChatRequest{
		Model: c.cfg.Model,
		Messages: []providerMessage{
			{
				Role:    RoleSystem,
				Content: []providerContentPart{{Type: "text", Text: systemInstruction}},
			},
			{
				Role:    RoleUser,
				Content: userParts,
			},
		},
		ResponseFormat: &providerResponseFormat{
			Type: "json_schema",
			JSONSchema: providerJSONSchema{
				Name:   schemaName,
				Schema: req.Schema,
				Strict: true,
			},
		},
		MaxTokens: c.cfg.MaxTokens,
	}
}

// normalizeOutcome maps the provider payload to a tagged Outcome.
// Only a content string that parses as a JSON object counts as
// structured; arrays, scalars and free text stay as text.
func normalizeOutcome(resp *providerChatResponse) *Outcome {
	if len(resp.Choices) == 0 {
		return &Outcome{Kind: OutcomeEmpty}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return &Outcome{Kind: OutcomeEmpty}
	}

	if strings.HasPrefix(content, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(content), &obj); err == nil {
			return &Outcome{
				Kind:       OutcomeStructured,
				Structured: json.RawMessage(content),
			}
		}
	}

	return &Outcome{Kind: OutcomeText, Text: content}
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
