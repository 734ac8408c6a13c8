// Package repository is the Persistence Gateway: upserts session,
// agent-result, debate-exchange, workflow-event, and tool-invocation rows
// with idempotency. Grounded on the teacher's internal/repository/sqlite.go
// (migration-via-ensureColumn, :memory: single-connection special case,
// upsert-by-business-key pattern).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// Store is the SQLite-backed Persistence Gateway.
type Store struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at dsn and runs
// migrations.
func NewSQLiteStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			config TEXT NOT NULL,
			status TEXT NOT NULL,
			phase TEXT NOT NULL,
			current_round INTEGER NOT NULL DEFAULT 0,
			synthesized_report TEXT NOT NULL DEFAULT '',
			evidence_pack TEXT,
			memory_snapshot TEXT,
			report_html_url TEXT,
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_results (
			session_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			thinking TEXT NOT NULL DEFAULT '',
			sources TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			PRIMARY KEY (session_id, agent_name)
		)`,
		`CREATE TABLE IF NOT EXISTS debate_exchanges (
			exchange_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			round_number INTEGER NOT NULL,
			debate_type TEXT NOT NULL,
			challenger TEXT NOT NULL,
			responder TEXT NOT NULL,
			challenge_content TEXT NOT NULL DEFAULT '',
			response_content TEXT NOT NULL DEFAULT '',
			followup_content TEXT NOT NULL DEFAULT '',
			revised INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debate_session_round ON debate_exchanges(session_id, round_number, created_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			node_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_created ON workflow_events(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tool_invocations (
			invocation_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			input TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			estimated_input_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_output_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_cost_usd REAL NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			feedback_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			rating INTEGER NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration %q: %w", stmt, err)
		}
	}
	return nil
}

// UpsertSession inserts or updates a session row by id.
func (s *Store) UpsertSession(ctx context.Context, sess *domain.Session) error {
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, profile, config, status, phase, current_round,
			synthesized_report, evidence_pack, memory_snapshot, report_html_url, error_message,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			profile=excluded.profile, config=excluded.config, status=excluded.status,
			phase=excluded.phase, current_round=excluded.current_round,
			synthesized_report=excluded.synthesized_report, evidence_pack=excluded.evidence_pack,
			memory_snapshot=excluded.memory_snapshot, report_html_url=excluded.report_html_url,
			error_message=excluded.error_message, updated_at=excluded.updated_at
	`, sess.SessionID, string(profile), string(cfg), sess.Status, sess.Phase, sess.CurrentRound,
		sess.SynthesizedReport, nullableJSON(sess.EvidencePack), nullableJSON(sess.MemorySnapshot),
		nullableString(sess.ReportHTMLURL), sess.ErrorMessage, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, profile, config, status, phase, current_round, synthesized_report,
			evidence_pack, memory_snapshot, report_html_url, error_message, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID)

	var sess domain.Session
	var profileRaw, cfgRaw string
	var evidence, memory, htmlURL sql.NullString
	if err := row.Scan(&sess.SessionID, &profileRaw, &cfgRaw, &sess.Status, &sess.Phase,
		&sess.CurrentRound, &sess.SynthesizedReport, &evidence, &memory, &htmlURL,
		&sess.ErrorMessage, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	_ = json.Unmarshal([]byte(profileRaw), &sess.Profile)
	_ = json.Unmarshal([]byte(cfgRaw), &sess.Config)
	if evidence.Valid {
		sess.EvidencePack = json.RawMessage(evidence.String)
	}
	if memory.Valid {
		sess.MemorySnapshot = json.RawMessage(memory.String)
	}
	if htmlURL.Valid {
		v := htmlURL.String
		sess.ReportHTMLURL = &v
	}
	return &sess, nil
}

// ListSessions returns a page of sessions, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status string, limit, offset int) ([]domain.Session, error) {
	query := `SELECT session_id, profile, config, status, phase, current_round, synthesized_report,
		evidence_pack, memory_snapshot, report_html_url, error_message, created_at, updated_at
		FROM sessions`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var profileRaw, cfgRaw string
		var evidence, memory, htmlURL sql.NullString
		if err := rows.Scan(&sess.SessionID, &profileRaw, &cfgRaw, &sess.Status, &sess.Phase,
			&sess.CurrentRound, &sess.SynthesizedReport, &evidence, &memory, &htmlURL,
			&sess.ErrorMessage, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		_ = json.Unmarshal([]byte(profileRaw), &sess.Profile)
		_ = json.Unmarshal([]byte(cfgRaw), &sess.Config)
		if evidence.Valid {
			sess.EvidencePack = json.RawMessage(evidence.String)
		}
		if memory.Valid {
			sess.MemorySnapshot = json.RawMessage(memory.String)
		}
		if htmlURL.Valid {
			v := htmlURL.String
			sess.ReportHTMLURL = &v
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpsertAgentResult inserts or updates an agent_results row keyed on
// (session_id, agent_name).
func (s *Store) UpsertAgentResult(ctx context.Context, ar *domain.AgentResult) error {
	sources, err := json.Marshal(ar.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_results (session_id, agent_name, content, thinking, sources, confidence,
			status, duration_ms, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, agent_name) DO UPDATE SET
			content=excluded.content, thinking=excluded.thinking, sources=excluded.sources,
			confidence=excluded.confidence, status=excluded.status, duration_ms=excluded.duration_ms,
			error=excluded.error, ended_at=excluded.ended_at
	`, ar.SessionID, ar.AgentName, ar.Content, ar.Thinking, string(sources), ar.Confidence,
		ar.Status, ar.DurationMs, ar.Error, ar.StartedAt, nullableTime(ar.EndedAt))
	if err != nil {
		return fmt.Errorf("upsert agent result: %w", err)
	}
	return nil
}

// ListAgentResults returns every agent result row for a session.
func (s *Store) ListAgentResults(ctx context.Context, sessionID string) ([]domain.AgentResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, agent_name, content, thinking, sources, confidence, status,
			duration_ms, error, started_at, ended_at
		FROM agent_results WHERE session_id = ? ORDER BY started_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list agent results: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentResult
	for rows.Next() {
		var ar domain.AgentResult
		var sourcesRaw string
		var ended sql.NullTime
		if err := rows.Scan(&ar.SessionID, &ar.AgentName, &ar.Content, &ar.Thinking, &sourcesRaw,
			&ar.Confidence, &ar.Status, &ar.DurationMs, &ar.Error, &ar.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scan agent result: %w", err)
		}
		_ = json.Unmarshal([]byte(sourcesRaw), &ar.Sources)
		if ended.Valid {
			t := ended.Time
			ar.EndedAt = &t
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

// InsertDebateExchange inserts one debate exchange row; when a row with the
// same exchange_id exists it updates that row's response_content,
// followup_content and revised instead.
func (s *Store) InsertDebateExchange(ctx context.Context, ex *domain.DebateExchange) error {
	revised := 0
	if ex.Revised {
		revised = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debate_exchanges (exchange_id, session_id, round_number, debate_type,
			challenger, responder, challenge_content, response_content, followup_content,
			revised, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange_id) DO UPDATE SET
			response_content=excluded.response_content, followup_content=excluded.followup_content,
			revised=excluded.revised
	`, ex.ExchangeID, ex.SessionID, ex.RoundNumber, ex.DebateType, ex.Challenger, ex.Responder,
		ex.ChallengeContent, ex.ResponseContent, ex.FollowupContent, revised, ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert debate exchange: %w", err)
	}
	return nil
}

// ListDebateExchanges returns every exchange for a session, ordered by
// (round_number, created_at).
func (s *Store) ListDebateExchanges(ctx context.Context, sessionID string) ([]domain.DebateExchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exchange_id, session_id, round_number, debate_type, challenger, responder,
			challenge_content, response_content, followup_content, revised, created_at
		FROM debate_exchanges WHERE session_id = ? ORDER BY round_number ASC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list debate exchanges: %w", err)
	}
	defer rows.Close()

	var out []domain.DebateExchange
	for rows.Next() {
		var ex domain.DebateExchange
		var revised int
		if err := rows.Scan(&ex.ExchangeID, &ex.SessionID, &ex.RoundNumber, &ex.DebateType,
			&ex.Challenger, &ex.Responder, &ex.ChallengeContent, &ex.ResponseContent,
			&ex.FollowupContent, &revised, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan debate exchange: %w", err)
		}
		ex.Revised = revised != 0
		out = append(out, ex)
	}
	return out, rows.Err()
}

// InsertEvent appends one workflow_event row. Failures here are logged by
// the caller and never block the run, per spec §4.6.
func (s *Store) InsertEvent(ctx context.Context, evt *domain.WorkflowEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_events (event_id, session_id, event_type, agent_name, tool_name,
			node_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.SessionID, evt.Type, evt.AgentName, evt.ToolName, evt.NodeID,
		string(evt.Payload), evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns events for sessionID with created_at after afterTs,
// oldest first, capped at limit.
func (s *Store) ListEvents(ctx context.Context, sessionID string, afterTs time.Time, limit int) ([]domain.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, session_id, event_type, agent_name, tool_name, node_id, payload, created_at
		FROM workflow_events WHERE session_id = ? AND created_at > ?
		ORDER BY created_at ASC LIMIT ?`, sessionID, afterTs, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowEvent
	for rows.Next() {
		var evt domain.WorkflowEvent
		var payload string
		if err := rows.Scan(&evt.EventID, &evt.SessionID, &evt.Type, &evt.AgentName, &evt.ToolName,
			&evt.NodeID, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Payload = json.RawMessage(payload)
		out = append(out, evt)
	}
	return out, rows.Err()
}

// UpsertToolInvocation inserts or updates a tool_invocations row keyed on
// invocation_id, guaranteeing idempotent writes under retry.
func (s *Store) UpsertToolInvocation(ctx context.Context, inv *domain.ToolInvocation) error {
	cacheHit := 0
	if inv.CacheHit {
		cacheHit = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_invocations (invocation_id, session_id, agent_name, tool_name, context,
			model_name, status, cache_hit, input, output, duration_ms, estimated_input_tokens,
			estimated_output_tokens, estimated_cost_usd, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invocation_id) DO UPDATE SET
			status=excluded.status, cache_hit=excluded.cache_hit, output=excluded.output,
			duration_ms=excluded.duration_ms, estimated_input_tokens=excluded.estimated_input_tokens,
			estimated_output_tokens=excluded.estimated_output_tokens,
			estimated_cost_usd=excluded.estimated_cost_usd, finished_at=excluded.finished_at
	`, inv.InvocationID, inv.SessionID, inv.AgentName, inv.ToolName, inv.Context, inv.ModelName,
		inv.Status, cacheHit, inv.Input, inv.Output, inv.DurationMs, inv.EstimatedInputTokens,
		inv.EstimatedOutputTokens, inv.EstimatedCostUSD, inv.StartedAt, nullableTime(inv.FinishedAt))
	if err != nil {
		return fmt.Errorf("upsert tool invocation: %w", err)
	}
	return nil
}

// ListToolInvocations returns every tool invocation for a session.
func (s *Store) ListToolInvocations(ctx context.Context, sessionID string) ([]domain.ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation_id, session_id, agent_name, tool_name, context, model_name, status,
			cache_hit, input, output, duration_ms, estimated_input_tokens, estimated_output_tokens,
			estimated_cost_usd, started_at, finished_at
		FROM tool_invocations WHERE session_id = ? ORDER BY started_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tool invocations: %w", err)
	}
	defer rows.Close()

	var out []domain.ToolInvocation
	for rows.Next() {
		var inv domain.ToolInvocation
		var cacheHit int
		var finished sql.NullTime
		if err := rows.Scan(&inv.InvocationID, &inv.SessionID, &inv.AgentName, &inv.ToolName,
			&inv.Context, &inv.ModelName, &inv.Status, &cacheHit, &inv.Input, &inv.Output,
			&inv.DurationMs, &inv.EstimatedInputTokens, &inv.EstimatedOutputTokens,
			&inv.EstimatedCostUSD, &inv.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan tool invocation: %w", err)
		}
		inv.CacheHit = cacheHit != 0
		if finished.Valid {
			t := finished.Time
			inv.FinishedAt = &t
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
