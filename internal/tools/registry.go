package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// ExecutorFunc performs the actual external call for a tool.
type ExecutorFunc func(ctx context.Context, query string) (output string, sources []string, err error)

// EventSink receives the domain events the registry produces so the caller
// can persist + publish them without this package depending on the graph
// or persistence layers.
type EventSink func(evt domain.WorkflowEvent)

// Registry mediates external tool calls, enforcing budgets, recording
// invocations, and caching results. One Registry instance is created per
// session and released on run terminal, per spec §9.
type Registry struct {
	sessionID string
	guardrail *Guardrail
	cache     *Cache
	executors map[string]ExecutorFunc
	sink      EventSink

	stats ToolMetricsAccumulator
}

// ToolMetricsAccumulator holds per-session counters. Registry keeps one in
// its stats field but does not update it; running call, error and cost
// counters are kept by the Guardrail.
type ToolMetricsAccumulator struct {
	TotalCalls    int
	CacheHits     int
	TotalDuration time.Duration
}

// NewRegistry constructs a Registry for one session.
func NewRegistry(sessionID string, guardrail *Guardrail, cache *Cache, sink EventSink) *Registry {
	r := &Registry{
		sessionID: sessionID,
		guardrail: guardrail,
		cache:     cache,
		executors: make(map[string]ExecutorFunc),
		sink:      sink,
	}
	r.executors["web_search"] = mockWebSearch
	return r
}

// Invoke mediates one call to toolName on behalf of agentName. It generates
// an invocation_id, consults the cache, tracks counters, applies the
// guardrail, and returns a ToolInvocation row plus the raw output.
func (r *Registry) Invoke(ctx context.Context, agentName, toolName, query string) (domain.ToolInvocation, string, []string) {
	invocationID := uuid.NewString()
	started := time.Now()

	if r.guardrail.IsWebsearchDisabled(r.sessionID) {
		inv := domain.ToolInvocation{
			InvocationID: invocationID,
			SessionID:    r.sessionID,
			AgentName:    agentName,
			ToolName:     toolName,
			Status:       domain.ToolInvocationFailed,
			Input:        redact(query),
			Output:       "guardrail_triggered",
			StartedAt:    started,
		}
		fin := time.Now()
		inv.FinishedAt = &fin
		r.emit(domain.EventGuardrailTrigger, agentName, toolName, map[string]interface{}{
			"agent":   agentName,
			"rule":    "websearch_disabled",
			"details": "session tool budget already exceeded",
		})
		return inv, "", nil
	}

	cacheKey := BuildKey(toolName, r.sessionID, CanonicalizeInput(query))
	if cached, ok := r.cache.Get(cacheKey); ok {
		var payload struct {
			Output  string   `json:"output"`
			Sources []string `json:"sources"`
		}
		_ = json.Unmarshal(cached, &payload)
		finished := time.Now()
		inv := domain.ToolInvocation{
			InvocationID: invocationID,
			SessionID:    r.sessionID,
			AgentName:    agentName,
			ToolName:     toolName,
			Status:       domain.ToolInvocationCompleted,
			CacheHit:     true,
			Input:        redact(query),
			Output:       redact(payload.Output),
			DurationMs:   0,
			StartedAt:    started,
			FinishedAt:   &finished,
		}
		r.emitToolEnd(agentName, toolName, inv)
		return inv, payload.Output, payload.Sources
	}

	r.emit(domain.EventToolStart, agentName, toolName, map[string]interface{}{
		"tool": toolName, "agent": agentName, "input": query,
	})

	executor, ok := r.executors[toolName]
	if !ok {
		err := fmt.Errorf("unknown tool %q", toolName)
		return r.fail(invocationID, agentName, toolName, query, started, err)
	}

	output, sources, err := executor(ctx, query)
	if err != nil {
		return r.fail(invocationID, agentName, toolName, query, started, err)
	}

	finished := time.Now()
	inv := domain.ToolInvocation{
		InvocationID:          invocationID,
		SessionID:             r.sessionID,
		AgentName:             agentName,
		ToolName:              toolName,
		Status:                domain.ToolInvocationCompleted,
		Input:                 redact(query),
		Output:                redact(output),
		DurationMs:            finished.Sub(started).Milliseconds(),
		EstimatedInputTokens:  len(query) / 4,
		EstimatedOutputTokens: len(output) / 4,
		EstimatedCostUSD:      estimateCost(len(query) + len(output)),
		StartedAt:             started,
		FinishedAt:            &finished,
	}

	payload, _ := json.Marshal(map[string]interface{}{"output": output, "sources": sources})
	r.cache.Set(cacheKey, payload)

	r.emitToolEnd(agentName, toolName, inv)

	stats := r.guardrail.RecordInvocation(r.sessionID, "completed", inv.EstimatedCostUSD)
	r.checkGuardrail(agentName, stats)

	return inv, output, sources
}

func (r *Registry) fail(invocationID, agentName, toolName, query string, started time.Time, execErr error) (domain.ToolInvocation, string, []string) {
	finished := time.Now()
	inv := domain.ToolInvocation{
		InvocationID: invocationID,
		SessionID:    r.sessionID,
		AgentName:    agentName,
		ToolName:     toolName,
		Status:       domain.ToolInvocationFailed,
		Input:        redact(query),
		Output:       execErr.Error(),
		DurationMs:   finished.Sub(started).Milliseconds(),
		StartedAt:    started,
		FinishedAt:   &finished,
	}
	r.emit(domain.EventToolError, agentName, toolName, map[string]interface{}{
		"tool": toolName, "agent": agentName, "error": execErr.Error(),
	})
	stats := r.guardrail.RecordInvocation(r.sessionID, "error", 0)
	r.checkGuardrail(agentName, stats)
	return inv, "", nil
}

func (r *Registry) emitToolEnd(agentName, toolName string, inv domain.ToolInvocation) {
	r.emit(domain.EventToolEnd, agentName, toolName, map[string]interface{}{
		"tool": toolName, "agent": agentName, "output": inv.Output,
		"duration_ms": inv.DurationMs, "cache_hit": inv.CacheHit,
	})
}

func (r *Registry) checkGuardrail(agentName string, _ SessionStats) {
	triggered, reason, stats := r.guardrail.Evaluate(r.sessionID)
	if !triggered {
		return
	}
	if !r.guardrail.MarkTriggered(r.sessionID) {
		return
	}
	r.emit(domain.EventGuardrailTrigger, agentName, "", map[string]interface{}{
		"agent":   agentName,
		"rule":    r.guardrail.Action,
		"details": reason,
		"stats":   stats,
	})
}

func (r *Registry) emit(t domain.EventType, agentName, toolName string, payload map[string]interface{}) {
	if r.sink == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	r.sink(domain.WorkflowEvent{
		SessionID: r.sessionID,
		Type:      t,
		AgentName: agentName,
		ToolName:  toolName,
		Payload:   raw,
		CreatedAt: time.Now(),
	})
}

// sensitiveFieldPatterns matches key=value/key:value pairs and bearer
// tokens whose key names look like credentials, per spec §4.5's "configured
// sensitive-field pattern" language. It is an unexported package-level var
// (not a const), so code inside package tools can extend it with
// domain-specific field names.
var sensitiveFieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|secret|password|passwd|client[_-]?secret|authorization)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-_.]+`),
	regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
}

// redact drops anything matching a configured sensitive-field pattern, then
// truncates, before persistence, per spec §4.5. This is a best-effort pass:
// it never fails, since redaction failures must not block persistence.
func redact(s string) string {
	for _, pattern := range sensitiveFieldPatterns {
		s = pattern.ReplaceAllString(s, "[redacted]")
	}
	const limit = 4000
	if len(s) > limit {
		return s[:limit] + "...(truncated)"
	}
	return s
}

func estimateCost(chars int) float64 {
	tokens := float64(chars) / 4.0
	return tokens * 0.000002
}

func mockWebSearch(ctx context.Context, query string) (string, []string, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	default:
	}
	sources := []string{
		fmt.Sprintf("https://example-research.test/search?q=%s", query),
		"https://example-market-data.test/report",
	}
	return fmt.Sprintf("web search results for %q: three relevant articles found", query), sources, nil
}
