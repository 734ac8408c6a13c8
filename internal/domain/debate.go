package domain

import "time"

// DebateExchange is one challenge + response (+ optional follow-up) between
// two agents within one round. Ordered by (round_number, created_at).
type DebateExchange struct {
	ExchangeID       string     `json:"exchange_id"`
	SessionID        string     `json:"session_id"`
	RoundNumber      int        `json:"round_number"`
	DebateType       DebateType `json:"debate_type"`
	Challenger       string     `json:"challenger"`
	Responder        string     `json:"responder"`
	ChallengeContent string     `json:"challenge_content"`
	ResponseContent  string     `json:"response_content"`
	FollowupContent  string     `json:"followup_content,omitempty"`
	Revised          bool       `json:"revised"`
	CreatedAt        time.Time  `json:"created_at"`
}
