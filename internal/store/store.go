// Package store is the PostgreSQL audit store: sessions, their append-only
// step records, and write-once post-mortems. Every write is a single
// statement or transaction so the trail stays consistent on fatal paths.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		goal          TEXT NOT NULL,
		status        TEXT NOT NULL,
		max_steps     INTEGER NOT NULL,
		step_number   INTEGER NOT NULL DEFAULT 0,
		planned_steps INTEGER NOT NULL DEFAULT 0,
		checkpoints   JSONB NOT NULL DEFAULT '[]',
		browser       TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS step_records (
		session_id      TEXT NOT NULL REFERENCES sessions(id),
		step_number     INTEGER NOT NULL,
		thought         TEXT NOT NULL,
		instruction     TEXT NOT NULL,
		action_summary  TEXT NOT NULL,
		failure_detail  TEXT NOT NULL DEFAULT '',
		decision_status TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		before_path     TEXT NOT NULL DEFAULT '',
		after_path      TEXT NOT NULL DEFAULT '',
		verify_achieved BOOLEAN,
		verify_reason   TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, step_number)
	);`,
	`CREATE TABLE IF NOT EXISTS post_mortems (
		session_id          TEXT PRIMARY KEY REFERENCES sessions(id),
		original_goal       TEXT NOT NULL,
		optimized_prompt    TEXT NOT NULL,
		summary             TEXT NOT NULL,
		validation_achieved BOOLEAN,
		validation_reason   TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL
	);`,
}

// EnsureSchema creates the audit tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// -- Sessions --

func (s *Store) CreateSession(ctx context.Context, sess schemas.Session) error {
	checkpoints, err := json.Marshal(checkpointsOrEmpty(sess.Checkpoints))
	if err != nil {
		return fmt.Errorf("failed to encode checkpoints: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, goal, status, max_steps, step_number, planned_steps, checkpoints, browser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		sess.ID, sess.Goal, string(sess.Status), sess.MaxSteps, sess.StepNumber,
		sess.PlannedSteps, checkpoints, sess.Browser, sess.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status schemas.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1;`,
		sessionID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// UpdateSessionPlan persists the revised budget and checkpoints adopted from
// the engine's first decision.
func (s *Store) UpdateSessionPlan(ctx context.Context, sess schemas.Session) error {
	checkpoints, err := json.Marshal(checkpointsOrEmpty(sess.Checkpoints))
	if err != nil {
		return fmt.Errorf("failed to encode checkpoints: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET max_steps = $2, planned_steps = $3, checkpoints = $4, step_number = $5
		WHERE id = $1;`,
		sess.ID, sess.MaxSteps, sess.PlannedSteps, checkpoints, sess.StepNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update session plan: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (schemas.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, goal, status, max_steps, step_number, planned_steps, checkpoints, browser, created_at
		FROM sessions WHERE id = $1;`, sessionID)

	var sess schemas.Session
	var status string
	var rawCheckpoints []byte
	err := row.Scan(&sess.ID, &sess.Goal, &status, &sess.MaxSteps, &sess.StepNumber,
		&sess.PlannedSteps, &rawCheckpoints, &sess.Browser, &sess.CreatedAt)
	if err != nil {
		return schemas.Session{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	sess.Status = schemas.SessionStatus(status)
	if len(rawCheckpoints) > 0 {
		if err := json.Unmarshal(rawCheckpoints, &sess.Checkpoints); err != nil {
			return schemas.Session{}, fmt.Errorf("corrupt checkpoints for session %s: %w", sessionID, err)
		}
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, goal, status, created_at
		FROM sessions ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []schemas.SessionSummary
	for rows.Next() {
		var sum schemas.SessionSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.Goal, &status, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.Status = schemas.SessionStatus(status)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// -- Step Records --

func (s *Store) AppendStepRecord(ctx context.Context, rec schemas.StepRecord) error {
	// Enforce the failure-detail cap at the persistence boundary.
	detail := schemas.ClampFailureDetail(rec.FailureDetail)
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO step_records (session_id, step_number, thought, instruction, action_summary,
			failure_detail, decision_status, outcome, before_path, after_path,
			verify_achieved, verify_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		rec.SessionID, rec.StepNumber, rec.Thought, rec.Instruction, rec.ActionSummary,
		detail, string(rec.DecisionStatus), string(rec.Outcome), rec.BeforePath, rec.AfterPath,
		rec.VerifyAchieved, rec.VerifyReason, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert step record: %w", err)
	}
	return nil
}

const stepRecordColumns = `session_id, step_number, thought, instruction, action_summary,
	failure_detail, decision_status, outcome, before_path, after_path,
	verify_achieved, verify_reason, created_at`

func (s *Store) ListStepRecords(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stepRecordColumns+`
		FROM step_records WHERE session_id = $1 ORDER BY step_number ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step records: %w", err)
	}
	return scanStepRecords(rows)
}

func (s *Store) ListFailureRecords(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stepRecordColumns+`
		FROM step_records
		WHERE session_id = $1 AND (outcome = 'Fail' OR failure_detail LIKE '%Error%')
		ORDER BY step_number ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure records: %w", err)
	}
	return scanStepRecords(rows)
}

func scanStepRecords(rows pgx.Rows) ([]schemas.StepRecord, error) {
	defer rows.Close()

	var out []schemas.StepRecord
	for rows.Next() {
		var rec schemas.StepRecord
		var decisionStatus, outcome string
		err := rows.Scan(&rec.SessionID, &rec.StepNumber, &rec.Thought, &rec.Instruction,
			&rec.ActionSummary, &rec.FailureDetail, &decisionStatus, &outcome,
			&rec.BeforePath, &rec.AfterPath, &rec.VerifyAchieved, &rec.VerifyReason, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record row: %w", err)
		}
		rec.DecisionStatus = schemas.DecisionStatus(decisionStatus)
		rec.Outcome = schemas.StepOutcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// -- Post-Mortems --

// CreatePostMortem inserts the artifact unless one already exists for the
// session. Write-once: conflicts are silently skipped and reported as false.
func (s *Store) CreatePostMortem(ctx context.Context, pm schemas.PostMortem) (bool, error) {
	var achieved *bool
	reason := ""
	if pm.Validation != nil {
		achieved = &pm.Validation.Achieved
		reason = pm.Validation.Reason
	}
	createdAt := pm.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO post_mortems (session_id, original_goal, optimized_prompt, summary,
			validation_achieved, validation_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING;`,
		pm.SessionID, pm.OriginalGoal, pm.OptimizedPrompt, pm.Summary,
		achieved, reason, createdAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post-mortem: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetPostMortem(ctx context.Context, sessionID string) (*schemas.PostMortem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, original_goal, optimized_prompt, summary,
			validation_achieved, validation_reason, created_at
		FROM post_mortems WHERE session_id = $1;`, sessionID)

	var pm schemas.PostMortem
	var achieved *bool
	var reason string
	err := row.Scan(&pm.SessionID, &pm.OriginalGoal, &pm.OptimizedPrompt, &pm.Summary,
		&achieved, &reason, &pm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load post-mortem for %s: %w", sessionID, err)
	}
	if achieved != nil {
		pm.Validation = &schemas.VerificationResult{Achieved: *achieved, Reason: reason}
	}
	return &pm, nil
}

// -- Rule Mining --

func (s *Store) ListRuleCandidates(ctx context.Context) ([]schemas.RuleCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT thought, instruction, outcome, COUNT(*) AS uses
		FROM step_records
		WHERE instruction <> '' AND lower(instruction) <> 'noop'
		GROUP BY thought, instruction, outcome
		ORDER BY uses DESC, thought ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule candidates: %w", err)
	}
	defer rows.Close()

	var out []schemas.RuleCandidate
	for rows.Next() {
		var c schemas.RuleCandidate
		var outcome string
		if err := rows.Scan(&c.Thought, &c.Instruction, &outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan rule candidate row: %w", err)
		}
		c.Outcome = schemas.StepOutcome(outcome)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func checkpointsOrEmpty(cps []int) []int {
	if cps == nil {
		return []int{}
	}
	return cps
}
