package graph

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/orchestrator/internal/concurrency"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
	"github.com/xiaot623/gogo/orchestrator/internal/eventbus"
	"github.com/xiaot623/gogo/orchestrator/internal/llm"
	"github.com/xiaot623/gogo/orchestrator/internal/policy"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
	"github.com/xiaot623/gogo/orchestrator/internal/tools"
)

// runContext threads every collaborator an Agent Stage or the Debate
// Coordinator needs through one run, so a new Bus/Registry/Guardrail is
// created per session per spec §9 ("no global mutable singletons").
type runContext struct {
	session   *domain.Session
	store     *repository.Store
	bus       *eventbus.Bus
	llmClient llm.Client
	registry  *tools.Registry
	governor  *concurrency.Governor
	policy    *policy.Engine
}

// emit builds a WorkflowEvent and hands it to emitEvent, which writes its
// row (fire-and-forget per spec §4.6) and publishes it on the bus for the
// SSE Emitter. The write runs in its own goroutine, so it may land after
// the publish.
func (rc *runContext) emit(evtType domain.EventType, agentName, toolName, nodeID string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("graph: marshal payload for %s failed: %v", evtType, err)
		raw = json.RawMessage(`{}`)
	}
	rc.emitEvent(domain.WorkflowEvent{
		SessionID: rc.session.SessionID,
		Type:      evtType,
		AgentName: agentName,
		ToolName:  toolName,
		NodeID:    nodeID,
		Payload:   raw,
	})
}

// emitEvent fills in any missing identity fields on a pre-built event, then
// persists (fire-and-forget) and publishes it. The Tool Registry builds its
// own WorkflowEvent values directly and hands them to this via an
// EventSink, since tools does not depend on the graph package.
func (rc *runContext) emitEvent(evt domain.WorkflowEvent) {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.store.InsertEvent(writeCtx, &evt); err != nil {
			log.Printf("graph: persist event %s for session %s failed: %v", evt.Type, rc.session.SessionID, err)
		}
	}()
	rc.bus.Publish(evt)
}

// saveSession persists a state change before any corresponding event is
// emitted, per spec §4.1's checkpointing rule. Session writes are strongly
// consistent (not fire-and-forget).
func (rc *runContext) saveSession(ctx context.Context) error {
	rc.session.UpdatedAt = time.Now().UTC()
	return rc.store.UpsertSession(ctx, rc.session)
}

// saveAgentResult persists an agent result row before any corresponding
// event, strongly consistent per spec §4.6.
func (rc *runContext) saveAgentResult(ctx context.Context, ar *domain.AgentResult) error {
	return rc.store.UpsertAgentResult(ctx, ar)
}

// saveExchange persists a debate exchange row, strongly consistent.
func (rc *runContext) saveExchange(ctx context.Context, ex *domain.DebateExchange) error {
	return rc.store.InsertDebateExchange(ctx, ex)
}

// saveToolInvocation persists a tool invocation row, fire-and-forget: a
// missed audit row must never block the agent stage that produced it.
func (rc *runContext) saveToolInvocation(inv domain.ToolInvocation) {
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.store.UpsertToolInvocation(writeCtx, &inv); err != nil {
			log.Printf("graph: persist tool invocation %s for session %s failed: %v", inv.ToolName, rc.session.SessionID, err)
		}
	}()
}

// toolEventSink adapts runContext.emitEvent to the tools.EventSink shape,
// keeping the tools package free of a dependency on graph.
func (rc *runContext) toolEventSink() tools.EventSink {
	return func(evt domain.WorkflowEvent) { rc.emitEvent(evt) }
}
