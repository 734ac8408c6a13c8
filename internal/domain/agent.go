package domain

import "time"

// AgentResult is the (session, agent_name) row an Agent Stage writes to.
// Unique per (session, agent_name); later runs within the same session
// upsert this row rather than inserting a new one.
type AgentResult struct {
	SessionID  string            `json:"session_id"`
	AgentName  string            `json:"agent_name"`
	Content    string            `json:"content"`
	Thinking   string            `json:"thinking"`
	Sources    []string          `json:"sources"`
	Confidence float64           `json:"confidence"`
	Status     AgentResultStatus `json:"status"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
}
