package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Session{
		SessionID: id,
		Profile: domain.Profile{
			TargetMarket: "US",
			SupplyChain:  "cross-border",
			SellerType:   "brand",
			MinPrice:     10,
			MaxPrice:     200,
		},
		Config:    domain.DefaultSessionConfig(),
		Status:    domain.SessionRunning,
		Phase:     domain.PhaseGather,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpsertAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	if err := store.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("upsert session failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected session, got nil")
	}
	if got.Profile.TargetMarket != "US" || got.Status != domain.SessionRunning {
		t.Fatalf("unexpected roundtrip: %+v", got)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error for missing session, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing session, got %+v", got)
	}
}

func TestUpsertSession_UpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	if err := store.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("initial upsert failed: %v", err)
	}

	sess.Status = domain.SessionCompleted
	sess.SynthesizedReport = "final report body"
	if err := store.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("update upsert failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if got.Status != domain.SessionCompleted || got.SynthesizedReport != "final report body" {
		t.Fatalf("expected updated fields, got %+v", got)
	}
}

func TestListSessions_FiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	running := testSession("s1")
	completed := testSession("s2")
	completed.Status = domain.SessionCompleted
	if err := store.UpsertSession(ctx, running); err != nil {
		t.Fatalf("upsert running failed: %v", err)
	}
	if err := store.UpsertSession(ctx, completed); err != nil {
		t.Fatalf("upsert completed failed: %v", err)
	}

	got, err := store.ListSessions(ctx, string(domain.SessionCompleted), 10, 0)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "s2" {
		t.Fatalf("expected only s2, got %+v", got)
	}
}

func TestUpsertAgentResult_UpsertsOnAgentName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ar := &domain.AgentResult{
		SessionID: "s1",
		AgentName: domain.AgentTrendScout,
		Content:   "initial content",
		Sources:   []string{"https://example.com/a"},
		Status:    domain.AgentRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := store.UpsertAgentResult(ctx, ar); err != nil {
		t.Fatalf("insert agent result failed: %v", err)
	}

	ar.Content = "final content"
	ar.Status = domain.AgentCompleted
	ended := time.Now().UTC()
	ar.EndedAt = &ended
	if err := store.UpsertAgentResult(ctx, ar); err != nil {
		t.Fatalf("update agent result failed: %v", err)
	}

	results, err := store.ListAgentResults(ctx, "s1")
	if err != nil {
		t.Fatalf("list agent results failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one row for repeated agent name, got %d", len(results))
	}
	if results[0].Content != "final content" || results[0].Status != domain.AgentCompleted {
		t.Fatalf("unexpected final row: %+v", results[0])
	}
	if len(results[0].Sources) != 1 || results[0].Sources[0] != "https://example.com/a" {
		t.Fatalf("unexpected sources: %+v", results[0].Sources)
	}
}

func TestDebateExchange_InsertAndListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &domain.DebateExchange{
		ExchangeID:  "e1",
		SessionID:   "s1",
		RoundNumber: 1,
		DebateType:  domain.DebatePeerReview,
		Challenger:  domain.AgentDebateChallenger,
		Responder:   domain.AgentTrendScout,
		CreatedAt:   time.Now().UTC(),
	}
	second := &domain.DebateExchange{
		ExchangeID:  "e2",
		SessionID:   "s1",
		RoundNumber: 2,
		DebateType:  domain.DebateRedTeam,
		Challenger:  domain.AgentDebateChallenger,
		Responder:   domain.AgentCompetitor,
		Revised:     true,
		CreatedAt:   time.Now().UTC().Add(time.Second),
	}
	if err := store.InsertDebateExchange(ctx, second); err != nil {
		t.Fatalf("insert second failed: %v", err)
	}
	if err := store.InsertDebateExchange(ctx, first); err != nil {
		t.Fatalf("insert first failed: %v", err)
	}

	got, err := store.ListDebateExchanges(ctx, "s1")
	if err != nil {
		t.Fatalf("list debate exchanges failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(got))
	}
	if got[0].RoundNumber != 1 || got[1].RoundNumber != 2 {
		t.Fatalf("expected round-number ordering, got %+v", got)
	}
	if !got[1].Revised {
		t.Fatalf("expected second exchange revised flag preserved")
	}
}

func TestInsertEvent_ListEventsFiltersByTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	old := &domain.WorkflowEvent{
		EventID: "ev1", SessionID: "s1", Type: domain.EventAgentStart,
		Payload: json.RawMessage(`{}`), CreatedAt: base,
	}
	recent := &domain.WorkflowEvent{
		EventID: "ev2", SessionID: "s1", Type: domain.EventAgentEnd,
		Payload: json.RawMessage(`{"ok":true}`), CreatedAt: base.Add(time.Minute),
	}
	if err := store.InsertEvent(ctx, old); err != nil {
		t.Fatalf("insert old event failed: %v", err)
	}
	if err := store.InsertEvent(ctx, recent); err != nil {
		t.Fatalf("insert recent event failed: %v", err)
	}

	got, err := store.ListEvents(ctx, "s1", base, 10)
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "ev2" {
		t.Fatalf("expected only events after cutoff, got %+v", got)
	}
}

func TestUpsertToolInvocation_IdempotentOnInvocationID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := &domain.ToolInvocation{
		InvocationID: "inv1",
		SessionID:    "s1",
		AgentName:    domain.AgentTrendScout,
		ToolName:     "web_search",
		Status:       domain.ToolInvocationPending,
		Input:        `{"query":"tariffs"}`,
		StartedAt:    time.Now().UTC(),
	}
	if err := store.UpsertToolInvocation(ctx, inv); err != nil {
		t.Fatalf("insert tool invocation failed: %v", err)
	}

	inv.Status = domain.ToolInvocationCompleted
	inv.Output = "some search result"
	inv.CacheHit = true
	finished := time.Now().UTC()
	inv.FinishedAt = &finished
	if err := store.UpsertToolInvocation(ctx, inv); err != nil {
		t.Fatalf("update tool invocation failed: %v", err)
	}

	got, err := store.ListToolInvocations(ctx, "s1")
	if err != nil {
		t.Fatalf("list tool invocations failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 row for repeated invocation id, got %d", len(got))
	}
	if got[0].Status != domain.ToolInvocationCompleted || !got[0].CacheHit {
		t.Fatalf("unexpected final row: %+v", got[0])
	}
}
