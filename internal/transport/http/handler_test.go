package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/orchestrator/internal/concurrency"
	"github.com/xiaot623/gogo/orchestrator/internal/config"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
	"github.com/xiaot623/gogo/orchestrator/internal/graph"
	"github.com/xiaot623/gogo/orchestrator/internal/llm"
	"github.com/xiaot623/gogo/orchestrator/internal/policy"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
	"github.com/xiaot623/gogo/orchestrator/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *repository.Store) {
	t.Helper()
	store := helpers.NewTestSQLiteStore(t)

	pol, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("policy.NewEngine failed: %v", err)
	}
	governor := concurrency.NewGovernor(4, 2)
	engine := graph.NewEngine(store, llm.NewMockClient(), governor, pol, &config.Config{EventBusBufferSize: 64})

	cfg := &config.Config{EventBusBufferSize: 64}
	h := &Handler{store: store, engine: engine, cfg: cfg, runs: newRunTracker()}
	return h, store
}

func TestHandler_Health(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Status_UnknownSessionReturnsNotFoundMarker(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/market-insight/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("does-not-exist")

	if err := h.Status(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Status_ReturnsPersistedSessionDocument(t *testing.T) {
	e := echo.New()
	h, store := newTestHandler(t)

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: "s1",
		Profile:   domain.Profile{TargetMarket: "US"},
		Config:    domain.DefaultSessionConfig(),
		Status:    domain.SessionCompleted,
		Phase:     domain.PhaseComplete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v2/market-insight/status/s1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")

	if err := h.Status(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_ListSessions_DefaultsLimitAndOffset(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/market-insight/sessions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListSessions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Export_UnknownSessionReturnsNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/market-insight/export/does-not-exist.zip", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("does-not-exist")

	if err := h.Export(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_StartRun_HonorsFlatConfigFields(t *testing.T) {
	h, _ := newTestHandler(t)

	rounds := 1
	retryMax := 5
	backoff := 900
	enableFollowup := false
	enableWebsearch := true

	session := h.startRun(startRequest{
		SessionID:        "client-chosen-id",
		Profile:          domain.Profile{TargetMarket: "Japan"},
		DebateRounds:     &rounds,
		EnableFollowup:   &enableFollowup,
		EnableWebsearch:  &enableWebsearch,
		RetryMaxAttempts: &retryMax,
		RetryBackoffMs:   &backoff,
		DegradeMode:      domain.DegradeFail,
	})
	h.runs.delete(session.SessionID)

	if session.SessionID != "client-chosen-id" {
		t.Fatalf("expected client-supplied session_id to be honored, got %q", session.SessionID)
	}
	if session.Config.DebateRounds != 1 {
		t.Fatalf("expected debate_rounds=1, got %d", session.Config.DebateRounds)
	}
	if session.Config.EnableFollowup {
		t.Fatalf("expected enable_followup=false to be honored")
	}
	if !session.Config.EnableWebsearch {
		t.Fatalf("expected enable_websearch=true to be honored")
	}
	if session.Config.RetryMaxAttempts != 5 {
		t.Fatalf("expected retry_max_attempts=5, got %d", session.Config.RetryMaxAttempts)
	}
	if session.Config.RetryBackoffMs != 900 {
		t.Fatalf("expected retry_backoff_ms=900, got %d", session.Config.RetryBackoffMs)
	}
	if session.Config.DegradeMode != domain.DegradeFail {
		t.Fatalf("expected degrade_mode=fail, got %q", session.Config.DegradeMode)
	}
}

func TestHandler_StartRun_GeneratesSessionIDWhenAbsent(t *testing.T) {
	h, _ := newTestHandler(t)

	session := h.startRun(startRequest{Profile: domain.Profile{TargetMarket: "US"}})
	h.runs.delete(session.SessionID)

	if session.SessionID == "" {
		t.Fatal("expected a generated session_id when the client omits one")
	}
	if session.Config.DebateRounds != domain.DefaultSessionConfig().DebateRounds {
		t.Fatalf("expected default debate_rounds when omitted, got %d", session.Config.DebateRounds)
	}
}

func TestHandler_Stream_InvalidBodyReturnsBadRequest(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/market-insight/stream", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Stream(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
