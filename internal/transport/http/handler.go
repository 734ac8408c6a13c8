package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/orchestrator/internal/config"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
	"github.com/xiaot623/gogo/orchestrator/internal/eventbus"
	"github.com/xiaot623/gogo/orchestrator/internal/graph"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
)

// Handler serves the market-insight API.
type Handler struct {
	store  *repository.Store
	engine *graph.Engine
	cfg    *config.Config
	runs   *runTracker
}

// runTracker tracks the live Bus for each session from startRun until its
// Run returns, so a /stream caller can find and subscribe to it. The bus
// does not replay: a subscriber receives only events published after it
// subscribes.
type runTracker struct {
	mu   sync.Mutex
	live map[string]*eventbus.Bus
}

func newRunTracker() *runTracker {
	return &runTracker{live: make(map[string]*eventbus.Bus)}
}

func (t *runTracker) put(sessionID string, bus *eventbus.Bus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[sessionID] = bus
}

func (t *runTracker) get(sessionID string) (*eventbus.Bus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.live[sessionID]
	return b, ok
}

func (t *runTracker) delete(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, sessionID)
}

// RegisterRoutes wires the six endpoints spec.md §6 names onto e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v2/market-insight/stream", h.Stream)
	e.POST("/api/v2/market-insight/generate", h.Generate)
	e.GET("/api/v2/market-insight/status/:session_id", h.Status)
	e.GET("/api/v2/market-insight/sessions", h.ListSessions)
	e.GET("/api/v2/market-insight/export/:session_id.zip", h.Export)
	e.GET("/health", h.Health)
	e.GET("/api/v2/market-insight/health", h.Health)
}

// startRequest is the shared, flat body for /stream and /generate, matching
// spec §6's wire contract (schemas/v2/requests.py's flattened fields, not a
// nested config object). Any field the client omits falls back to
// domain.DefaultSessionConfig's value.
type startRequest struct {
	SessionID        string            `json:"session_id,omitempty"`
	Profile          domain.Profile    `json:"profile"`
	DebateRounds     *int              `json:"debate_rounds,omitempty"`
	EnableFollowup   *bool             `json:"enable_followup,omitempty"`
	EnableWebsearch  *bool             `json:"enable_websearch,omitempty"`
	RetryMaxAttempts *int              `json:"retry_max_attempts,omitempty"`
	RetryBackoffMs   *int              `json:"retry_backoff_ms,omitempty"`
	DegradeMode      domain.DegradeMode `json:"degrade_mode,omitempty"`
}

// startRun creates a fresh session (Engine.Run persists it once started)
// and launches the graph engine against it in a background goroutine detached from the HTTP
// request context, so a client disconnecting the /stream connection never
// cancels the run in progress, per spec §5.
func (h *Handler) startRun(req startRequest) *domain.Session {
	cfg := domain.DefaultSessionConfig()
	if req.DebateRounds != nil {
		cfg.DebateRounds = *req.DebateRounds
	}
	if req.EnableFollowup != nil {
		cfg.EnableFollowup = *req.EnableFollowup
	}
	if req.EnableWebsearch != nil {
		cfg.EnableWebsearch = *req.EnableWebsearch
	}
	if req.RetryMaxAttempts != nil {
		cfg.RetryMaxAttempts = *req.RetryMaxAttempts
	}
	if req.RetryBackoffMs != nil {
		cfg.RetryBackoffMs = *req.RetryBackoffMs
	}
	if req.DegradeMode != "" {
		cfg.DegradeMode = req.DegradeMode
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: sessionID,
		Profile:   req.Profile,
		Config:    cfg,
		Status:    domain.SessionPending,
		Phase:     domain.PhaseInit,
		CreatedAt: now,
		UpdatedAt: now,
	}

	bus := eventbus.New(h.cfg.EventBusBufferSize)
	h.runs.put(session.SessionID, bus)

	runCtx := context.Background()
	go func() {
		defer h.runs.delete(session.SessionID)
		_ = h.engine.Run(runCtx, session, bus)
	}()

	return session
}

// Stream starts a run and streams its events over SSE until terminal.
// POST /api/v2/market-insight/stream
func (h *Handler) Stream(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil || req.Profile == (domain.Profile{}) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	session := h.startRun(req)
	return h.streamSSE(c, session.SessionID)
}

// Generate starts a run and blocks until it reaches a terminal state,
// returning the final session document.
// POST /api/v2/market-insight/generate
func (h *Handler) Generate(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	session := h.startRun(req)

	ctx := c.Request().Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "client disconnected"})
		case <-ticker.C:
			current, err := h.store.GetSession(ctx, session.SessionID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			if current != nil && current.IsTerminal() {
				return c.JSON(http.StatusOK, current)
			}
			if time.Now().After(deadline) {
				return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "run exceeded maximum duration"})
			}
		}
	}
}

// Status returns the full reconstructable picture of one session.
// GET /api/v2/market-insight/status/:session_id
func (h *Handler) Status(c echo.Context) error {
	sessionID := c.Param("session_id")
	ctx := c.Request().Context()

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if session == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "not_found"})
	}

	agentResults, err := h.store.ListAgentResults(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	exchanges, err := h.store.ListDebateExchanges(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	events, err := h.store.ListEvents(ctx, sessionID, time.Time{}, 10000)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	invocations, err := h.store.ListToolInvocations(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":           session,
		"agent_results":     agentResults,
		"debate_exchanges":  exchanges,
		"workflow_events":   events,
		"tool_invocations":  invocations,
		"tool_metrics":      computeToolMetrics(invocations),
		"demo_metrics":      computeDemoMetrics(session, agentResults, exchanges),
		"report_charts":     computeReportCharts(agentResults),
		"report_html_url":   session.ReportHTMLURL,
	})
}

// ListSessions returns a paginated list of sessions.
// GET /api/v2/market-insight/sessions?status=&limit=&offset=
func (h *Handler) ListSessions(c echo.Context) error {
	status := c.QueryParam("status")
	limit := 20
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			offset = v
		}
	}

	sessions, err := h.store.ListSessions(c.Request().Context(), status, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

// Export bundles a session's rendered artifacts. Rendering to HTML/PDF is
// out of scope (spec.md Non-goals); this returns the raw JSON documents a
// renderer would consume, named as the export bundle would name them.
// GET /api/v2/market-insight/export/:session_id.zip
func (h *Handler) Export(c echo.Context) error {
	sessionID := c.Param("session_id")
	ctx := c.Request().Context()

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if session == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	agentResults, _ := h.store.ListAgentResults(ctx, sessionID)
	exchanges, _ := h.store.ListDebateExchanges(ctx, sessionID)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":            session,
		"agent_results":      agentResults,
		"debate_exchanges":   exchanges,
		"evidence_pack":      session.EvidencePack,
		"memory_snapshot":    session.MemorySnapshot,
		"synthesized_report": session.SynthesizedReport,
	})
}

// Health reports process liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func computeToolMetrics(invocations []domain.ToolInvocation) domain.ToolMetrics {
	m := domain.ToolMetrics{TotalCalls: len(invocations)}
	if len(invocations) == 0 {
		return m
	}
	var errCalls, cacheHits int
	var totalCost, totalDuration float64
	for _, inv := range invocations {
		if inv.Status == domain.ToolInvocationFailed {
			errCalls++
		}
		if inv.CacheHit {
			cacheHits++
		}
		totalCost += inv.EstimatedCostUSD
		totalDuration += float64(inv.DurationMs)
	}
	m.TotalEstimatedCost = totalCost
	m.ErrorRate = float64(errCalls) / float64(len(invocations))
	m.AvgDurationMs = totalDuration / float64(len(invocations))
	m.CacheHitRate = float64(cacheHits) / float64(len(invocations))
	return m
}

func computeDemoMetrics(session *domain.Session, agentResults []domain.AgentResult, exchanges []domain.DebateExchange) map[string]interface{} {
	completed, failed, degraded := 0, 0, 0
	for _, ar := range agentResults {
		switch ar.Status {
		case domain.AgentCompleted:
			completed++
		case domain.AgentFailed:
			failed++
		case domain.AgentDegraded, domain.AgentSkipped:
			degraded++
		}
	}
	revised := 0
	for _, ex := range exchanges {
		if ex.Revised {
			revised++
		}
	}
	return map[string]interface{}{
		"agents_completed": completed,
		"agents_failed":    failed,
		"agents_degraded":  degraded,
		"debate_exchanges": len(exchanges),
		"debate_revisions": revised,
		"status":           session.Status,
	}
}

func computeReportCharts(agentResults []domain.AgentResult) []map[string]interface{} {
	charts := make([]map[string]interface{}, 0, len(agentResults))
	for _, ar := range agentResults {
		charts = append(charts, map[string]interface{}{
			"agent":       ar.AgentName,
			"confidence":  ar.Confidence,
			"duration_ms": ar.DurationMs,
			"status":      ar.Status,
		})
	}
	return charts
}
