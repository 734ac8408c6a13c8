package llm

import "time"

// Mode selects between the real provider client and the deterministic mock.
const (
	ModeMock = "MOCK"
	ModeReal = "REAL"
)

// NewClient returns a mock or real client depending on mode, mirroring the
// teacher's internal/adapter/llm factory.
func NewClient(mode, baseURL, apiKey string, timeout time.Duration) Client {
	if mode == ModeMock || baseURL == "" {
		return NewMockClient()
	}
	return NewHTTPClient(baseURL, apiKey, timeout)
}
