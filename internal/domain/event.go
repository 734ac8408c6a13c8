package domain

import (
	"encoding/json"
	"time"
)

// WorkflowEvent is one row of the append-only audit log. It doubles as the
// replay/reconnection substrate for /status/{session_id}.
type WorkflowEvent struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"event_type"`
	AgentName string          `json:"agent_name,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	NodeID    string          `json:"node_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
