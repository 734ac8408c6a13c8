package domain

import "time"

// ToolInvocation records one call mediated by the Tool Registry. Uniqueness
// on InvocationID guarantees idempotent writes under retry.
type ToolInvocation struct {
	InvocationID          string               `json:"invocation_id"`
	SessionID             string               `json:"session_id"`
	AgentName             string               `json:"agent_name"`
	ToolName              string               `json:"tool_name"`
	Context               string               `json:"context,omitempty"`
	ModelName             string               `json:"model_name"`
	Status                ToolInvocationStatus `json:"status"`
	CacheHit              bool                 `json:"cache_hit"`
	Input                 string               `json:"input"`
	Output                string               `json:"output,omitempty"`
	DurationMs            int64                `json:"duration_ms"`
	EstimatedInputTokens  int                  `json:"estimated_input_tokens"`
	EstimatedOutputTokens int                  `json:"estimated_output_tokens"`
	EstimatedCostUSD      float64              `json:"estimated_cost_usd"`
	StartedAt             time.Time            `json:"started_at"`
	FinishedAt            *time.Time           `json:"finished_at,omitempty"`
}

// ToolMetrics is a per-session rollup, returned from the status endpoint.
type ToolMetrics struct {
	TotalCalls          int     `json:"total_calls"`
	TotalEstimatedCost  float64 `json:"total_estimated_cost_usd"`
	ErrorRate           float64 `json:"error_rate"`
	AvgDurationMs       float64 `json:"avg_duration_ms"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	GuardrailTriggered  bool    `json:"guardrail_triggered"`
}
