package llm

import (
	"context"
	"fmt"
)

// MockClient is a deterministic stand-in for the provider, used in tests
// and when GOGO_MODE=MOCK. It generates content that already contains the
// sentinel markers §4.2 requires, so downstream content-extraction can be
// exercised end to end without a live model.
type MockClient struct{}

// NewMockClient constructs a MockClient.
func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) lastUserContent(req ChatCompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func (m *MockClient) generate(req ChatCompletionRequest) string {
	prompt := m.lastUserContent(req)
	thinking := fmt.Sprintf("considering %q under model %s", truncate(prompt, 60), req.Model)
	report := fmt.Sprintf("Findings for %s: market signal is stable, three notable factors identified.", truncate(prompt, 40))
	return thinking + "<<<<THINKING_ENDS>>>>" + "<<<<REPORT_STARTS>>>>" + report
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (m *MockClient) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	content := m.generate(req)
	return &ChatCompletionResponse{
		Model:   req.Model,
		Content: content,
		Usage:   Usage{PromptTokens: estimateTokens(req.Messages), CompletionTokens: len(content) / 4, TotalTokens: len(content) / 4},
	}, nil
}

func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest, cb StreamCallback) (*Usage, error) {
	content := m.generate(req)
	chunks := splitIntoChunks(content, 12)
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := cb(StreamChunk{Delta: c}); err != nil {
			return nil, err
		}
	}
	usage := &Usage{PromptTokens: estimateTokens(req.Messages), CompletionTokens: len(content) / 4, TotalTokens: len(content) / 4}
	return usage, nil
}

func splitIntoChunks(s string, size int) []string {
	var out []string
	for len(s) > 0 {
		if len(s) <= size {
			out = append(out, s)
			break
		}
		out = append(out, s[:size])
		s = s[size:]
	}
	return out
}

func estimateTokens(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	return total / 4
}
