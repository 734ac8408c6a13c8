package graph

import (
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// runSynthesize produces the final report through the synthesizer LLM
// stage. If the synthesizer itself exhausts retries and degrade_mode is not
// "fail", a deterministic fallback report is substituted so the run can
// still reach orchestrator_end, grounded on
// _generate_fallback_report in original_source/backend/core/graph_engine.py.
func runSynthesize(ctxOutcome func(prompt string) stageOutcome, profile domain.Profile, results []domain.AgentResult, exchanges []domain.DebateExchange) (domain.AgentResult, stageOutcome) {
	outcome := ctxOutcome(synthesizerPrompt(profile, results))
	if outcome.result.Status == domain.AgentCompleted {
		return outcome.result, outcome
	}
	if outcome.fatal != nil {
		return outcome.result, outcome
	}
	// degrade_mode was skip/partial and the synthesizer did not complete:
	// substitute the deterministic fallback report as the session's content,
	// but keep the AgentResult's own terminal status as recorded by
	// runAgentStage (AgentFailed under partial, AgentSkipped under skip).
	fallback := outcome.result
	fallback.Content = generateFallbackReport(profile, results, exchanges)
	return fallback, outcome
}

// generateFallbackReport composes a report deterministically from whatever
// agent findings survived, so a synthesizer outage still yields a usable
// artifact instead of an empty one.
func generateFallbackReport(profile domain.Profile, results []domain.AgentResult, exchanges []domain.DebateExchange) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Market Insight Report (fallback synthesis) for %s / %s\n\n", profile.TargetMarket, profile.SupplyChain))

	var failed []string
	for _, r := range results {
		if r.Status == domain.AgentFailed || r.Status == domain.AgentSkipped {
			failed = append(failed, r.AgentName)
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n%s\n\n", r.AgentName, clip(r.Content, 800)))
	}

	if len(failed) > 0 {
		sb.WriteString("## Unavailable analyses\n")
		sb.WriteString(strings.Join(failed, ", "))
		sb.WriteString("\n\n")
	}

	revisedCount := 0
	for _, ex := range exchanges {
		if ex.Revised {
			revisedCount++
		}
	}
	if len(exchanges) > 0 {
		sb.WriteString(fmt.Sprintf("## Debate summary\n%d exchanges occurred, %d resulted in a revision.\n", len(exchanges), revisedCount))
	}

	sb.WriteString("\nThis report was assembled without synthesizer-model input; treat conclusions as preliminary.\n")
	return sb.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
