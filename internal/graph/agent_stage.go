package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
	"github.com/xiaot623/gogo/orchestrator/internal/llm"
	"github.com/xiaot623/gogo/orchestrator/internal/retrypolicy"
)

// ErrCancelled marks a stage aborted by cooperative cancellation.
var ErrCancelled = errors.New("stage cancelled")

// ErrSessionFailed signals degrade_mode=fail was applied and the whole run
// must abort without an orchestrator_end event.
var ErrSessionFailed = errors.New("session failed under degrade_mode=fail")

type stageOutcome struct {
	result   domain.AgentResult
	fatal    error // non-nil only when degrade_mode=fail exhausted retries
}

// runAgentStage assembles a prompt, calls the LLM adapter under the
// retry/degrade policy, streams the response through content-extraction,
// and returns the terminal AgentResult. isTerminalStage is true for the
// synthesizer, whose exhaustion maps to AgentFailed rather than
// AgentDegraded under degrade_mode=partial, per spec §4.3.
func runAgentStage(ctx context.Context, rc *runContext, agentName, prompt string, isTerminalStage bool) stageOutcome {
	startedAt := time.Now().UTC()
	rc.emit(domain.EventAgentStart, agentName, "", agentName, map[string]interface{}{"agent": agentName})

	ar := domain.AgentResult{
		SessionID: rc.session.SessionID,
		AgentName: agentName,
		Status:    domain.AgentRunning,
		StartedAt: startedAt,
	}
	_ = rc.saveAgentResult(ctx, &ar)

	cfg := rc.session.Config
	pol := retrypolicy.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BackoffMs:   cfg.RetryBackoffMs,
		JitterKey:   rc.session.SessionID + ":" + agentName,
	}

	var rawOutput string
	var sources []string
	attemptErr := pol.Attempt(func(attempt int) error {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		out, srcs, err := streamOnce(ctx, rc, agentName, prompt)
		if err != nil {
			return err
		}
		rawOutput = out
		sources = srcs
		return nil
	}, func(d time.Duration) {
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}, func(attempt int, err error) {
		rc.emit(domain.EventRetry, agentName, "", agentName, map[string]interface{}{
			"target_type": "agent", "target_id": agentName, "attempt": attempt,
		})
	})

	duration := time.Since(startedAt)

	if attemptErr == nil {
		thinking, report := ExtractContent(rawOutput)
		ar.Content = report
		ar.Thinking = thinking
		ar.Sources = sources
		ar.Confidence = 0.75
		ar.Status = domain.AgentCompleted
		ar.DurationMs = duration.Milliseconds()
		ended := time.Now().UTC()
		ar.EndedAt = &ended
		_ = rc.saveAgentResult(ctx, &ar)
		rc.emit(domain.EventAgentEnd, agentName, "", agentName, map[string]interface{}{
			"agent": agentName, "status": string(ar.Status), "duration_ms": ar.DurationMs,
		})
		return stageOutcome{result: ar}
	}

	if errors.Is(attemptErr, ErrCancelled) || ctx.Err() != nil {
		ar.Status = domain.AgentFailed
		ar.Error = "cancelled"
		ended := time.Now().UTC()
		ar.EndedAt = &ended
		ar.DurationMs = duration.Milliseconds()
		_ = rc.saveAgentResult(ctx, &ar)
		rc.emit(domain.EventAgentEnd, agentName, "", agentName, map[string]interface{}{
			"agent": agentName, "status": string(ar.Status), "duration_ms": ar.DurationMs, "error": "cancelled",
		})
		return stageOutcome{result: ar, fatal: ErrCancelled}
	}

	rc.emit(domain.EventAgentError, agentName, "", agentName, map[string]interface{}{
		"agent": agentName, "error": attemptErr.Error(),
	})

	ar.Error = attemptErr.Error()
	ar.DurationMs = duration.Milliseconds()
	ended := time.Now().UTC()
	ar.EndedAt = &ended

	switch cfg.DegradeMode {
	case domain.DegradeSkip:
		ar.Status = domain.AgentSkipped
		_ = rc.saveAgentResult(ctx, &ar)
		rc.emit(domain.EventAgentEnd, agentName, "", agentName, map[string]interface{}{
			"agent": agentName, "status": string(ar.Status), "duration_ms": ar.DurationMs,
		})
		return stageOutcome{result: ar}
	case domain.DegradeFail:
		ar.Status = domain.AgentFailed
		_ = rc.saveAgentResult(ctx, &ar)
		rc.emit(domain.EventAgentEnd, agentName, "", agentName, map[string]interface{}{
			"agent": agentName, "status": string(ar.Status), "duration_ms": ar.DurationMs, "error": ar.Error,
		})
		return stageOutcome{result: ar, fatal: ErrSessionFailed}
	default: // partial
		if isTerminalStage {
			ar.Status = domain.AgentFailed
		} else {
			ar.Status = domain.AgentDegraded
		}
		_ = rc.saveAgentResult(ctx, &ar)
		rc.emit(domain.EventAgentEnd, agentName, "", agentName, map[string]interface{}{
			"agent": agentName, "status": string(ar.Status), "duration_ms": ar.DurationMs, "error": ar.Error,
		})
		return stageOutcome{result: ar}
	}
}

// streamOnce performs a single LLM streaming call, mediating any web-search
// tool call through the Tool Registry and returning the accumulated raw
// text.
func streamOnce(ctx context.Context, rc *runContext, agentName, prompt string) (string, []string, error) {
	if err := rc.governor.Acquire(ctx); err != nil {
		return "", nil, fmt.Errorf("acquire llm concurrency permit: %w", err)
	}
	var callErr error
	defer func() { rc.governor.Release(callErr) }()

	var sb strings.Builder
	var sources []string

	if rc.session.Config.EnableWebsearch && rc.registry != nil {
		allowed := true
		if rc.policy != nil {
			decision, err := rc.policy.Evaluate(ctx, map[string]interface{}{"agent_name": agentName})
			if err == nil && decision == "block" {
				allowed = false
			}
		}
		if allowed {
			inv, output, srcs := rc.registry.Invoke(ctx, agentName, "web_search", queryFor(agentName, prompt))
			rc.saveToolInvocation(inv)
			if output != "" {
				sb.WriteString("Search context: " + output + "\n\n")
			}
			sources = srcs
		}
	}

	req := llm.ChatCompletionRequest{
		Model: "orchestrator-model",
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "Respond using the THINKING_ENDS / REPORT_STARTS sentinel format."},
			{Role: "user", Content: prompt},
		},
		Stream: true,
	}

	_, callErr = rc.llmClient.CreateChatCompletionStream(ctx, req, func(chunk llm.StreamChunk) error {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		sb.WriteString(chunk.Delta)
		think, report := ExtractContent(sb.String())
		if report != "" {
			rc.emit(domain.EventAgentChunk, agentName, "", agentName, map[string]interface{}{
				"agent": agentName, "content": chunk.Delta,
			})
		} else if think != "" {
			rc.emit(domain.EventAgentThinkChunk, agentName, "", agentName, map[string]interface{}{
				"agent": agentName, "content": chunk.Delta,
			})
		}
		return nil
	})
	if callErr != nil {
		return "", nil, callErr
	}
	return sb.String(), sources, nil
}

func queryFor(agentName, prompt string) string {
	if len(prompt) > 120 {
		return agentName + ": " + prompt[:120]
	}
	return agentName + ": " + prompt
}
