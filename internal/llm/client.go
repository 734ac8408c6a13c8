package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is the real, provider-backed adapter. It speaks an
// OpenAI-compatible streaming/non-streaming chat completion protocol,
// grounded on the teacher's llmproxy/client.go.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs a real client against baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireChoice struct {
	Delta        *ChatMessage `json:"delta,omitempty"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

func (c *HTTPClient) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(wireRequest{Model: req.Model, Messages: req.Messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(raw))
	}

	var wc wireChunk
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	content := ""
	if len(wc.Choices) > 0 && wc.Choices[0].Message != nil {
		content = wc.Choices[0].Message.Content
	}
	usage := Usage{}
	if wc.Usage != nil {
		usage = *wc.Usage
	}
	return &ChatCompletionResponse{Model: req.Model, Content: content, Usage: usage}, nil
}

func (c *HTTPClient) CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest, cb StreamCallback) (*Usage, error) {
	body, err := json.Marshal(wireRequest{Model: req.Model, Messages: req.Messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(raw))
	}

	reader := bufio.NewReader(resp.Body)
	var usage *Usage
	for {
		select {
		case <-ctx.Done():
			return usage, ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return usage, nil
			}
			return usage, fmt.Errorf("read stream: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return usage, nil
		}
		var wc wireChunk
		if err := json.Unmarshal([]byte(data), &wc); err != nil {
			continue
		}
		if wc.Usage != nil {
			usage = wc.Usage
		}
		delta := ""
		if len(wc.Choices) > 0 && wc.Choices[0].Delta != nil {
			delta = wc.Choices[0].Delta.Content
		}
		if delta == "" {
			continue
		}
		if err := cb(StreamChunk{Delta: delta}); err != nil {
			return usage, err
		}
	}
}

func (c *HTTPClient) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
