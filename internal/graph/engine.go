// Package graph implements the workflow graph: gather fan-out, two debate
// rounds, synthesis, and the evidence/memory packing that follows. Grounded
// on original_source/backend/core/graph_engine.py's node/edge shape,
// reimplemented with goroutines, channels, and sync.WaitGroup in place of
// the original's async task graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/gogo/orchestrator/internal/concurrency"
	"github.com/xiaot623/gogo/orchestrator/internal/config"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
	"github.com/xiaot623/gogo/orchestrator/internal/evidence"
	"github.com/xiaot623/gogo/orchestrator/internal/eventbus"
	"github.com/xiaot623/gogo/orchestrator/internal/llm"
	"github.com/xiaot623/gogo/orchestrator/internal/memory"
	"github.com/xiaot623/gogo/orchestrator/internal/policy"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
	"github.com/xiaot623/gogo/orchestrator/internal/retrypolicy"
	"github.com/xiaot623/gogo/orchestrator/internal/tools"
)

// Engine runs one session's workflow graph end to end. It holds only
// process-wide collaborators; the per-session Registry, Guardrail and Cache
// are created fresh in Run and released on terminal, and the per-session
// Bus is supplied by Run's caller and closed by Run on terminal, per spec
// §9's "no global mutable singletons".
type Engine struct {
	Store     *repository.Store
	LLMClient llm.Client
	Governor  *concurrency.Governor
	Policy    *policy.Engine
	Config    *config.Config
}

// NewEngine constructs an Engine from its process-wide collaborators.
func NewEngine(store *repository.Store, llmClient llm.Client, governor *concurrency.Governor, pol *policy.Engine, cfg *config.Config) *Engine {
	return &Engine{Store: store, LLMClient: llmClient, Governor: governor, Policy: pol, Config: cfg}
}

// Run executes the full workflow for session, mutating it in place and
// persisting the terminal Session row. It never panics on agent failure;
// degrade_mode governs whether a stage failure aborts the whole run. bus is
// owned by the caller (the HTTP/SSE Front creates it before starting Run so
// a /stream subscriber can attach immediately) and is closed here once the
// run reaches terminal, so late subscribers see a closed channel rather
// than blocking forever.
func (e *Engine) Run(ctx context.Context, session *domain.Session, bus *eventbus.Bus) error {
	defer bus.Close()

	guardrail := tools.NewGuardrail(e.Config.GuardrailMaxCostUSD, e.Config.GuardrailMaxErrRate, e.Config.GuardrailMinCalls)
	defer guardrail.Release(session.SessionID)

	cache := tools.NewCache(e.Config.ToolCacheTTLSeconds, e.Config.ToolCacheMaxSize)

	rc := &runContext{
		session:   session,
		store:     e.Store,
		bus:       bus,
		llmClient: e.LLMClient,
		governor:  e.Governor,
		policy:    e.Policy,
	}
	rc.registry = tools.NewRegistry(session.SessionID, guardrail, cache, rc.toolEventSink())

	session.Status = domain.SessionRunning
	session.Phase = domain.PhaseInit
	if err := rc.saveSession(ctx); err != nil {
		return err
	}
	rc.emit(domain.EventOrchestratorStart, "", "", "orchestrator", map[string]interface{}{
		"session_id": session.SessionID, "profile": session.Profile,
	})

	resultsByAgent, fatal := e.runGather(ctx, rc)
	if fatal != nil {
		return e.fail(ctx, rc, fatal)
	}

	orderedResults := make([]domain.AgentResult, 0, len(domain.GatherAgents))
	for _, name := range domain.GatherAgents {
		orderedResults = append(orderedResults, resultsByAgent[name])
	}

	var allExchanges []domain.DebateExchange
	if session.Config.DebateRounds >= 1 {
		session.Phase = domain.PhaseDebatePeer
		session.CurrentRound = 1
		_ = rc.saveSession(ctx)
		peerTargets := completedOnly(peerReviewTargets(resultsByAgent))
		allExchanges = append(allExchanges, runDebateRound(ctx, rc, 1, domain.DebatePeerReview, peerTargets, resultsByAgent)...)
	}
	if session.Config.DebateRounds >= 2 {
		session.Phase = domain.PhaseDebateRedteam
		session.CurrentRound = 2
		_ = rc.saveSession(ctx)
		redTeamTargets := completedOnly(orderedResults)
		allExchanges = append(allExchanges, runDebateRound(ctx, rc, 2, domain.DebateRedTeam, redTeamTargets, resultsByAgent)...)
	}

	// Refresh orderedResults with any in-place revisions applied during debate.
	for i, ar := range orderedResults {
		if updated, ok := resultsByAgent[ar.AgentName]; ok {
			orderedResults[i] = updated
		}
	}

	if summary, confidence, reached := detectConsensus(allExchanges, orderedResults); reached {
		rc.emit(domain.EventConsensusReached, "", "", "orchestrator", map[string]interface{}{
			"summary": summary, "confidence": confidence,
		})
	}

	session.Phase = domain.PhaseSynthesize
	_ = rc.saveSession(ctx)

	finalResult, synthOutcome := runSynthesize(func(prompt string) stageOutcome {
		return runAgentStage(ctx, rc, domain.AgentSynthesizer, prompt, true)
	}, session.Profile, orderedResults, allExchanges)
	if synthOutcome.fatal != nil {
		return e.fail(ctx, rc, synthOutcome.fatal)
	}

	session.SynthesizedReport = finalResult.Content

	pack := evidence.Build(session.SessionID, session.Profile, orderedResults, allExchanges, session.SynthesizedReport)
	if raw, err := json.Marshal(pack); err == nil {
		session.EvidencePack = raw
	}
	snapshot := memory.Build(orderedResults, allExchanges, session.SynthesizedReport)
	if raw, err := json.Marshal(snapshot); err == nil {
		session.MemorySnapshot = raw
	}

	session.Status = domain.SessionCompleted
	session.Phase = domain.PhaseComplete
	if err := rc.saveSession(ctx); err != nil {
		return err
	}
	rc.emit(domain.EventOrchestratorEnd, "", "", "orchestrator", map[string]interface{}{
		"session_id": session.SessionID, "status": string(session.Status),
	})
	return nil
}

// runGather fans the four gather agents out concurrently, staggering their
// first LLM call to spread the initial burst against the provider, and
// joins on all four reaching a terminal AgentResult status.
func (e *Engine) runGather(ctx context.Context, rc *runContext) (map[string]domain.AgentResult, error) {
	rc.session.Phase = domain.PhaseGather
	_ = rc.saveSession(ctx)

	type gathered struct {
		outcome stageOutcome
	}
	results := make([]gathered, len(domain.GatherAgents))

	var wg sync.WaitGroup
	for i, agentName := range domain.GatherAgents {
		wg.Add(1)
		go func(i int, agentName string) {
			defer wg.Done()
			stagger := retrypolicy.WorkerStagger(i)
			select {
			case <-ctx.Done():
				results[i] = gathered{outcome: stageOutcome{result: domain.AgentResult{
					SessionID: rc.session.SessionID, AgentName: agentName, Status: domain.AgentFailed, Error: "cancelled",
				}, fatal: ErrCancelled}}
				return
			case <-time.After(stagger):
			}
			prompt := rolePrompt(agentName, rc.session.Profile)
			results[i] = gathered{outcome: runAgentStage(ctx, rc, agentName, prompt, false)}
		}(i, agentName)
	}
	wg.Wait()

	byAgent := make(map[string]domain.AgentResult, len(domain.GatherAgents))
	for i, agentName := range domain.GatherAgents {
		byAgent[agentName] = results[i].outcome.result
		if results[i].outcome.fatal != nil && results[i].outcome.fatal != ErrCancelled {
			return byAgent, results[i].outcome.fatal
		}
	}
	if ctx.Err() != nil {
		return byAgent, ErrCancelled
	}
	return byAgent, nil
}

// peerReviewTargets flattens domain.DebatePeerPairs into the bidirectional
// set of responders for round 1: each side of a pair is challenged in turn.
func peerReviewTargets(resultsByAgent map[string]domain.AgentResult) []domain.AgentResult {
	targets := make([]domain.AgentResult, 0, len(domain.DebatePeerPairs)*2)
	for _, pair := range domain.DebatePeerPairs {
		targets = append(targets, resultsByAgent[pair[0]], resultsByAgent[pair[1]])
	}
	return targets
}

// completedOnly filters targets down to the agents that completed gather,
// per spec §4.4 point 1. A failed, degraded, or skipped agent has empty or
// stale Content; challenging it produces a spurious exchange (and, worse, a
// possible bogus revision), so it never enters a debate round.
func completedOnly(targets []domain.AgentResult) []domain.AgentResult {
	out := make([]domain.AgentResult, 0, len(targets))
	for _, t := range targets {
		if t.Status == domain.AgentCompleted {
			out = append(out, t)
		}
	}
	return out
}

// detectConsensus reports whether the final debate round produced no
// revisions: every challenged agent held its findings under scrutiny, which
// this treats as consensus. The spec's taxonomy table names the event and
// its payload shape but leaves the trigger condition unspecified; this is
// the concrete reading, grounded on the original implementation's (unused)
// consensus_reached scaffolding in schemas/v2/events.py.
func detectConsensus(exchanges []domain.DebateExchange, results []domain.AgentResult) (summary string, confidence float64, reached bool) {
	if len(exchanges) == 0 {
		return "", 0, false
	}
	lastRound := exchanges[0].RoundNumber
	for _, ex := range exchanges {
		if ex.RoundNumber > lastRound {
			lastRound = ex.RoundNumber
		}
	}
	for _, ex := range exchanges {
		if ex.RoundNumber == lastRound && ex.Revised {
			return "", 0, false
		}
	}
	var total float64
	for _, r := range results {
		total += r.Confidence
	}
	if len(results) > 0 {
		confidence = total / float64(len(results))
	}
	summary = fmt.Sprintf("no agent revised its position in round %d; findings held under challenge", lastRound)
	return summary, confidence, true
}

func (e *Engine) fail(ctx context.Context, rc *runContext, cause error) error {
	if cause == ErrCancelled {
		rc.session.Status = domain.SessionCancelled
	} else {
		rc.session.Status = domain.SessionFailed
		rc.session.ErrorMessage = cause.Error()
	}
	rc.session.Phase = domain.PhaseError
	_ = rc.saveSession(ctx)
	// orchestrator_end is deliberately not emitted here, per spec invariants
	// 3 and 6: a degrade_mode=fail run ends on this error event. A cancelled
	// run emits no further event, since its client already knows the run
	// stopped (it cancelled the context).
	if cause != ErrCancelled {
		rc.emit(domain.EventError, "", "", "orchestrator", map[string]interface{}{
			"error": cause.Error(),
		})
	}
	return cause
}
