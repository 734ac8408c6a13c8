package domain

import (
	"encoding/json"
	"time"
)

// Profile is the business profile a client submits to start a run.
type Profile struct {
	TargetMarket string `json:"target_market"`
	SupplyChain  string `json:"supply_chain"`
	SellerType   string `json:"seller_type"`
	MinPrice     int    `json:"min_price"`
	MaxPrice     int    `json:"max_price"`
}

// SessionConfig holds the knobs a client may set for one run.
type SessionConfig struct {
	DebateRounds             int         `json:"debate_rounds"`
	EnableFollowup           bool        `json:"enable_followup"`
	EnableWebsearch          bool        `json:"enable_websearch"`
	RetryMaxAttempts         int         `json:"retry_max_attempts"`
	RetryBackoffMs           int         `json:"retry_backoff_ms"`
	DegradeMode              DegradeMode `json:"degrade_mode"`
	RevisionApplyThreshold   float64     `json:"revision_apply_threshold"`
}

// DefaultSessionConfig mirrors the original implementation's request defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DebateRounds:           2,
		EnableFollowup:         true,
		EnableWebsearch:        false,
		RetryMaxAttempts:       2,
		RetryBackoffMs:         300,
		DegradeMode:            DegradePartial,
		RevisionApplyThreshold: 0,
	}
}

// Session is one complete run of the pipeline from start to terminal state.
type Session struct {
	SessionID         string          `json:"session_id"`
	Profile           Profile         `json:"profile"`
	Config            SessionConfig   `json:"config"`
	Status            SessionStatus   `json:"status"`
	Phase             Phase           `json:"phase"`
	CurrentRound      int             `json:"current_debate_round"`
	SynthesizedReport string          `json:"synthesized_report,omitempty"`
	EvidencePack      json.RawMessage `json:"evidence_pack,omitempty"`
	MemorySnapshot    json.RawMessage `json:"memory_snapshot,omitempty"`
	ReportHTMLURL     *string         `json:"report_html_url,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the session has reached a status that will
// never change again.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}
