package llm

import "promptcache/internal/schema"

// Request shape we send to upstream (OpenAI-style chat completions with
// multimodal content parts and a strict json_schema response format).
type providerMessage struct {
	Role    string                `json:"role"`
	Content []providerContentPart `json:"content"`
}

type providerContentPart struct {
	Type     string            `json:"type"` // "text" or "image_url"
	Text     string            `json:"text,omitempty"`
	ImageURL *providerImageURL `json:"image_url,omitempty"`
}

type providerImageURL struct {
	URL string `json:"url"`
}

type providerResponseFormat struct {
	Type       string             `json:"type"` // "json_schema"
	JSONSchema providerJSONSchema `json:"json_schema"`
}

type providerJSONSchema struct {
	Name   string            `json:"name"`
	Schema schema.JSONSchema `json:"schema"`
	Strict bool              `json:"strict"`
}

type providerChatRequest struct {
	Model          string                  `json:"model"`
	Messages       []providerMessage       `json:"messages"`
	ResponseFormat *providerResponseFormat `json:"response_format,omitempty"`
	MaxTokens      int                     `json:"max_tokens,omitempty"`
}

type providerChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type providerUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
	Usage   *providerUsage       `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}
