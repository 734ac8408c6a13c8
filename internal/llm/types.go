// Package llm is the LLM Client Adapter: it invokes the model, yields
// incremental text chunks, and applies a timeout. StreamChunk has Search*
// fields for tool-call events, but neither HTTPClient nor MockClient sets
// them. Grounded on the teacher's llmproxy/client.go OpenAI-compatible
// types and internal/adapter/llm mock client.
package llm

import "context"

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the OpenAI-compatible request shape.
type ChatCompletionRequest struct {
	Model           string        `json:"model"`
	Messages        []ChatMessage `json:"messages"`
	Temperature     *float64      `json:"temperature,omitempty"`
	MaxTokens       *int          `json:"max_tokens,omitempty"`
	Stream          bool          `json:"stream"`
	EnableWebsearch bool          `json:"-"`
}

// Usage is the token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the OpenAI-compatible non-streaming response.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// StreamChunk is one incremental piece of a streaming response.
type StreamChunk struct {
	Delta        string
	SearchStart  bool
	SearchQuery  string
	SearchDone   bool
	SearchResult []string
	Done         bool
	Usage        *Usage
}

// StreamCallback receives each chunk as it arrives. Returning an error
// aborts the stream.
type StreamCallback func(chunk StreamChunk) error

// Client is the adapter surface every graph stage calls through.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest, cb StreamCallback) (*Usage, error)
}
