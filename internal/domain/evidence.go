package domain

// EvidencePack maps claims in the final report to source agents and
// external sources.
type EvidencePack struct {
	Version        string          `json:"version"`
	SessionID      string          `json:"session_id"`
	GeneratedAt    string          `json:"generated_at"`
	ReportExcerpt  string          `json:"report_excerpt"`
	Claims         []Claim         `json:"claims"`
	Sources        []Source        `json:"sources"`
	Traceability   []Traceability  `json:"traceability"`
	DebateAdjusts  []DebateAdjust  `json:"debate_adjustments"`
	Stats          EvidenceStats   `json:"stats"`
}

// Claim is one claim-like sentence extracted from the synthesized report.
type Claim struct {
	ClaimID     string   `json:"claim_id"`
	Agent       string   `json:"agent"`
	Summary     string   `json:"summary"`
	Confidence  float64  `json:"confidence"`
	SourceRefs  []string `json:"source_refs"`
	GeneratedAt string   `json:"generated_at"`
}

// Source is one external reference (URL-like token or citation).
type Source struct {
	SourceID       string `json:"source_id"`
	Source         string `json:"source"`
	FirstSeenAgent string `json:"first_seen_in_agent"`
}

// Traceability links a claim back to the agent result and tool invocations
// that support it.
type Traceability struct {
	ClaimID    string   `json:"claim_id"`
	FromAgent  string   `json:"from_agent"`
	SourceRefs []string `json:"source_refs"`
}

// DebateAdjust summarizes one debate exchange's effect on a claim's origin.
type DebateAdjust struct {
	RoundNumber      int    `json:"round_number"`
	DebateType       string `json:"debate_type"`
	Challenger       string `json:"challenger"`
	Responder        string `json:"responder"`
	Revised          bool   `json:"revised"`
	ChallengeSummary string `json:"challenge_summary"`
	ResponseSummary  string `json:"response_summary"`
}

// EvidenceStats is a small rollup carried alongside the pack.
type EvidenceStats struct {
	ClaimsCount  int `json:"claims_count"`
	SourcesCount int `json:"sources_count"`
	DebateCount  int `json:"debate_count"`
}

// MemorySnapshot is a session-local recap, not cross-session memory.
type MemorySnapshot struct {
	Version         string              `json:"version"`
	Summary         string              `json:"summary"`
	Entities        map[string][]string `json:"entities"`
	AgentHighlights map[string][]string `json:"agent_highlights"`
	DebateFocus     []string            `json:"debate_focus"`
	ActionItems     []string            `json:"action_items"`
	RiskItems       []string            `json:"risk_items"`
}
