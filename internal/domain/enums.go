package domain

// SessionStatus is the lifecycle status of a Session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Phase is the current stage of the workflow graph.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseGather        Phase = "gather"
	PhaseDebatePeer    Phase = "debate_peer"
	PhaseDebateRedteam Phase = "debate_redteam"
	PhaseSynthesize    Phase = "synthesize"
	PhaseComplete      Phase = "complete"
	PhaseError         Phase = "error"
)

// DegradeMode is applied after retries are exhausted for a stage.
type DegradeMode string

const (
	DegradePartial DegradeMode = "partial"
	DegradeSkip    DegradeMode = "skip"
	DegradeFail    DegradeMode = "fail"
)

// AgentResultStatus is the terminal or in-flight state of an AgentResult row.
type AgentResultStatus string

const (
	AgentPending   AgentResultStatus = "pending"
	AgentRunning   AgentResultStatus = "running"
	AgentCompleted AgentResultStatus = "completed"
	AgentDegraded  AgentResultStatus = "degraded"
	AgentSkipped   AgentResultStatus = "skipped"
	AgentFailed    AgentResultStatus = "failed"
)

// DebateType distinguishes round 1 (peer review) from round 2 (red team).
type DebateType string

const (
	DebatePeerReview DebateType = "peer_review"
	DebateRedTeam    DebateType = "red_team"
)

// ToolInvocationStatus is the lifecycle of a ToolInvocation row.
type ToolInvocationStatus string

const (
	ToolInvocationPending   ToolInvocationStatus = "pending"
	ToolInvocationCompleted ToolInvocationStatus = "completed"
	ToolInvocationFailed    ToolInvocationStatus = "failed"
)

// Agent role names. These are the fixed vertices of the graph.
const (
	AgentTrendScout       = "trend_scout"
	AgentCompetitor       = "competitor_analyst"
	AgentRegulation       = "regulation_checker"
	AgentSocial           = "social_sentinel"
	AgentSynthesizer      = "synthesizer"
	AgentDebateChallenger = "debate_challenger"
)

// GatherAgents is the fixed fan-out set for the gather phase.
var GatherAgents = []string{AgentTrendScout, AgentCompetitor, AgentRegulation, AgentSocial}

// DebatePeerPairs are the round-1 peer-review pairings (bidirectional).
var DebatePeerPairs = [][2]string{
	{AgentTrendScout, AgentCompetitor},
	{AgentRegulation, AgentSocial},
}

// EventType enumerates every SSE/WorkflowEvent type this system emits.
type EventType string

const (
	EventOrchestratorStart EventType = "orchestrator_start"
	EventOrchestratorEnd   EventType = "orchestrator_end"
	EventAgentStart        EventType = "agent_start"
	EventAgentThinkChunk   EventType = "agent_thinking_chunk"
	EventAgentChunk        EventType = "agent_chunk"
	EventAgentEnd          EventType = "agent_end"
	EventAgentError        EventType = "agent_error"
	EventToolStart         EventType = "tool_start"
	EventToolEnd           EventType = "tool_end"
	EventToolError         EventType = "tool_error"
	EventGuardrailTrigger  EventType = "guardrail_triggered"
	EventRetry             EventType = "retry"
	EventDebateRoundStart  EventType = "debate_round_start"
	EventDebateRoundEnd    EventType = "debate_round_end"
	EventAgentChallenge    EventType = "agent_challenge"
	EventAgentChallengeEnd EventType = "agent_challenge_end"
	EventAgentRespond      EventType = "agent_respond"
	EventAgentRespondEnd   EventType = "agent_respond_end"
	EventAgentFollowupEnd  EventType = "agent_followup_end"
	EventConsensusReached  EventType = "consensus_reached"
	EventError             EventType = "error"
)
