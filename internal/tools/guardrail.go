package tools

import (
	"fmt"
	"sync"
)

// SessionStats is a per-session running counter used by the guardrail.
type SessionStats struct {
	TotalCalls         int
	ErrorCalls         int
	EstimatedCostUSD   float64
}

// ErrorRate returns 0 when there is no data yet, matching the original's
// SessionGuardrailStats.error_rate property.
func (s SessionStats) ErrorRate() float64 {
	if s.TotalCalls <= 0 {
		return 0
	}
	return float64(s.ErrorCalls) / float64(s.TotalCalls)
}

// Guardrail enforces per-session thresholds on estimated cost and on error
// rate (with a minimum-call floor). It counts errors but has no threshold
// on the absolute error count. Once tripped, a
// session is latched disabled for the remainder of the run. Grounded on
// original_source/backend/tools/guardrail.py.
type Guardrail struct {
	MaxEstimatedCostUSD float64
	MaxErrorRate        float64
	MinCallsForErrRate  int
	Action              string

	mu        sync.Mutex
	stats     map[string]*SessionStats
	disabled  map[string]bool
	triggered map[string]bool
}

// NewGuardrail constructs a Guardrail with the given thresholds.
func NewGuardrail(maxCostUSD, maxErrRate float64, minCalls int) *Guardrail {
	return &Guardrail{
		MaxEstimatedCostUSD: maxCostUSD,
		MaxErrorRate:        maxErrRate,
		MinCallsForErrRate:  minCalls,
		Action:              "disable_websearch",
		stats:               make(map[string]*SessionStats),
		disabled:            make(map[string]bool),
		triggered:           make(map[string]bool),
	}
}

// RecordInvocation updates the running counters for sessionID and returns a
// snapshot copy.
func (g *Guardrail) RecordInvocation(sessionID, status string, estimatedCostUSD float64) SessionStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats[sessionID]
	if s == nil {
		s = &SessionStats{}
		g.stats[sessionID] = s
	}
	s.TotalCalls++
	if status == "error" {
		s.ErrorCalls++
	}
	s.EstimatedCostUSD += estimatedCostUSD
	return *s
}

// IsWebsearchDisabled reports whether sessionID has been latched disabled.
func (g *Guardrail) IsWebsearchDisabled(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled[sessionID]
}

// Evaluate checks the current stats against thresholds and, on trip,
// permanently disables the session.
func (g *Guardrail) Evaluate(sessionID string) (triggered bool, reason string, stats SessionStats) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats[sessionID]
	if s == nil {
		return false, "", SessionStats{}
	}
	stats = *s

	costHit := g.MaxEstimatedCostUSD > 0 && s.EstimatedCostUSD >= g.MaxEstimatedCostUSD
	errRateHit := s.TotalCalls >= g.MinCallsForErrRate && s.ErrorRate() >= g.MaxErrorRate

	switch {
	case costHit:
		reason = fmt.Sprintf("estimated cost %.4f exceeded budget %.4f", s.EstimatedCostUSD, g.MaxEstimatedCostUSD)
		triggered = true
	case errRateHit:
		reason = fmt.Sprintf("error rate %.2f exceeded budget %.2f over %d calls", s.ErrorRate(), g.MaxErrorRate, s.TotalCalls)
		triggered = true
	}
	if triggered {
		g.disabled[sessionID] = true
	}
	return triggered, reason, stats
}

// MarkTriggered is an idempotent one-shot flag: it returns true only the
// first time it is called for sessionID, so the guardrail_triggered event
// fires exactly once even though Evaluate may keep reporting triggered.
func (g *Guardrail) MarkTriggered(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.triggered[sessionID] {
		return false
	}
	g.triggered[sessionID] = true
	return true
}

// Release drops per-session state once a run reaches terminal, so the
// guardrail does not leak memory across sessions.
func (g *Guardrail) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stats, sessionID)
	delete(g.disabled, sessionID)
	delete(g.triggered, sessionID)
}
