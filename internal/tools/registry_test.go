package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

func newTestRegistry(t *testing.T, guardrail *Guardrail) (*Registry, *[]domain.WorkflowEvent) {
	t.Helper()
	events := []domain.WorkflowEvent{}
	sink := func(evt domain.WorkflowEvent) { events = append(events, evt) }
	return NewRegistry("s1", guardrail, NewCache(60, 32), sink), &events
}

func TestRegistry_InvokeCompletesAndCaches(t *testing.T) {
	reg, events := newTestRegistry(t, NewGuardrail(100, 0.9, 1000))

	inv, output, sources := reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "tariffs 2026")
	require.Equal(t, domain.ToolInvocationCompleted, inv.Status)
	require.False(t, inv.CacheHit)
	require.NotEmpty(t, output)
	require.NotEmpty(t, sources)

	// second call with an identical query hits the cache.
	inv2, output2, _ := reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "tariffs 2026")
	require.True(t, inv2.CacheHit)
	require.Equal(t, output, output2)

	var sawStart, sawEnd bool
	for _, evt := range *events {
		if evt.Type == domain.EventToolStart {
			sawStart = true
		}
		if evt.Type == domain.EventToolEnd {
			sawEnd = true
		}
	}
	require.True(t, sawStart)
	require.True(t, sawEnd)
}

func TestRegistry_UnknownToolFails(t *testing.T) {
	reg, _ := newTestRegistry(t, NewGuardrail(100, 0.9, 1000))
	inv, output, _ := reg.Invoke(context.Background(), domain.AgentTrendScout, "not_a_real_tool", "q")
	require.Equal(t, domain.ToolInvocationFailed, inv.Status)
	require.Empty(t, output)
}

func TestRegistry_GuardrailDisabledSessionShortCircuits(t *testing.T) {
	guardrail := NewGuardrail(0.0000001, 0.9, 1000)
	reg, events := newTestRegistry(t, guardrail)

	// first call trips the cost guardrail and latches the session disabled.
	reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "expensive query")
	require.True(t, guardrail.IsWebsearchDisabled("s1"))

	inv, output, _ := reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "another query")
	require.Equal(t, domain.ToolInvocationFailed, inv.Status)
	require.Empty(t, output)

	var sawGuardrailEvent bool
	for _, evt := range *events {
		if evt.Type == domain.EventGuardrailTrigger {
			sawGuardrailEvent = true
		}
	}
	require.True(t, sawGuardrailEvent)
}

func TestRedact_DropsSensitiveFieldsAndTruncates(t *testing.T) {
	in := "query with api_key=sk-abcdef123456 and contact jane@example.test for access_token: xyz789"
	got := redact(in)
	require.NotContains(t, got, "sk-abcdef123456")
	require.NotContains(t, got, "jane@example.test")
	require.NotContains(t, got, "xyz789")
	require.Contains(t, got, "[redacted]")

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	require.Contains(t, redact(string(long)), "...(truncated)")
}

func TestRegistry_DifferentQueriesDoNotShareCacheEntries(t *testing.T) {
	reg, _ := newTestRegistry(t, NewGuardrail(100, 0.9, 1000))
	_, outputA, _ := reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "query a")
	_, outputB, _ := reg.Invoke(context.Background(), domain.AgentTrendScout, "web_search", "query b")
	require.NotEqual(t, outputA, outputB)
}
