// Package pipeline is the orchestrator of the observe-decide-act-verify loop.
// It owns the session for its lifetime: snapshots the screen, obtains a
// decision (live engine first, deterministic fallback second), resolves the
// instruction through the layered translator chain, executes it, verifies the
// visible effect, and persists one append-only step record per iteration.
// Faults are never retried: a capture, execution, or definite verification
// failure ends the session in StatusError with the evidence on record.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/action"
	"github.com/xkilldash9x/tasker-cli/internal/envinfo"
)

// actionSummaryLen bounds the display summary derived from the thought.
const actionSummaryLen = 120

// minStepBudget is the floor applied when adopting the engine's plan length.
const minStepBudget = 2

// Deps are the pipeline's collaborators. Engine may return nil decisions;
// Fallback must not (it is the deterministic local engine).
type Deps struct {
	Store      schemas.Store
	Engine     schemas.ReasoningClient
	Fallback   schemas.ReasoningClient
	Translator schemas.Translator
	Verifier   schemas.Verifier
	Capturer   schemas.Capturer
	Executor   schemas.Executor
	Env        *envinfo.Descriptor

	ScreenshotsDir  string
	DefaultMaxSteps int
}

// Pipeline drives sessions through the loop.
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
}

// New validates the collaborator set and creates a pipeline.
func New(deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline requires a store")
	case deps.Fallback == nil:
		return nil, fmt.Errorf("pipeline requires a fallback reasoning client")
	case deps.Capturer == nil:
		return nil, fmt.Errorf("pipeline requires a capturer")
	case deps.Executor == nil:
		return nil, fmt.Errorf("pipeline requires an executor")
	case deps.Env == nil:
		return nil, fmt.Errorf("pipeline requires an environment descriptor")
	}
	if deps.DefaultMaxSteps <= 0 {
		deps.DefaultMaxSteps = 10
	}
	return &Pipeline{deps: deps, logger: logger.Named("pipeline")}, nil
}

// NewSession creates and persists a fresh session in StatusRunning.
func (p *Pipeline) NewSession(ctx context.Context, goal, browser string) (*schemas.Session, error) {
	sess := &schemas.Session{
		ID:         uuid.NewString(),
		Goal:       goal,
		Status:     schemas.StatusRunning,
		MaxSteps:   p.deps.DefaultMaxSteps,
		StepNumber: 0,
		Browser:    browser,
		CreatedAt:  time.Now(),
	}
	if err := p.deps.Store.CreateSession(ctx, *sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	p.logger.Info("Session created",
		zap.String("session_id", sess.ID),
		zap.String("goal", goal),
		zap.Int("max_steps", sess.MaxSteps),
	)
	return sess, nil
}

// Run advances the session until it reaches a terminal state.
func (p *Pipeline) Run(ctx context.Context, sess *schemas.Session) error {
	for !sess.Status.IsTerminal() {
		if err := p.AdvanceOneStep(ctx, sess); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceOneStep executes exactly one loop iteration and mutates the session
// accordingly. Calling it on a terminal session is a no-op. The returned
// error covers persistence faults only; collaborator faults end the session
// in StatusError instead.
func (p *Pipeline) AdvanceOneStep(ctx context.Context, sess *schemas.Session) error {
	if sess.Status.IsTerminal() {
		p.logger.Debug("Session already terminal; ignoring advance.",
			zap.String("session_id", sess.ID), zap.String("status", string(sess.Status)))
		return nil
	}

	// Budget gate: the check runs before any work so an exhausted session
	// never acts again.
	if sess.StepNumber >= sess.MaxSteps {
		return p.finish(ctx, sess, schemas.StatusLost, "Step budget exhausted without a verdict.")
	}

	step := sess.StepNumber + 1
	isFirst := step == 1
	envContext := p.deps.Env.Describe(sess.Browser)

	rec := schemas.StepRecord{
		SessionID:  sess.ID,
		StepNumber: step,
		CreatedAt:  time.Now(),
	}

	// 1. Observe: before-snapshot. A capture fault is fatal.
	beforePath, err := p.capture(ctx, sess.ID, step, "before")
	if err != nil {
		rec.Outcome = schemas.OutcomeFail
		rec.FailureDetail = "Capture Error: " + err.Error()
		rec.DecisionStatus = schemas.DecisionContinue
		return p.failStep(ctx, sess, rec, "Screen capture failed.")
	}
	rec.BeforePath = beforePath

	// 2. Decide: live engine first, deterministic fallback when it yields nil.
	history, err := p.deps.Store.ListStepRecords(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load step history: %w", err)
	}
	decision := p.decide(ctx, sess.Goal, history, isFirst, envContext, beforePath)
	rec.Thought = decision.Thought
	rec.ActionSummary = clip(decision.Thought, actionSummaryLen)
	rec.DecisionStatus = decision.Status

	// 3. Adopt the plan, first step only.
	if isFirst {
		p.adoptPlan(sess, decision, step)
	}
	sess.StepNumber = step
	sess.PlannedSteps = maxInt(sess.PlannedSteps, decision.PlannedStepCount)
	if err := p.deps.Store.UpdateSessionPlan(ctx, *sess); err != nil {
		return fmt.Errorf("failed to persist session plan: %w", err)
	}

	// 4. Translate: a valid script passes through untouched; a missing
	// instruction is recovered from the thought; natural language goes to the
	// rule translator, then to the engine, then degrades to noop.
	script := p.resolveInstruction(ctx, decision, envContext)
	rec.Instruction = script

	// 5. Act. An execution fault is fatal, never retried; its message is the
	// failure detail verbatim (capped at persistence).
	if !action.IsNoop(script) {
		if execErr := p.deps.Executor.Execute(ctx, script); execErr != nil {
			rec.Outcome = schemas.OutcomeFail
			rec.FailureDetail = "Execution Error: " + execErr.Error()
			// Best-effort after-snapshot so the post-mortem can see the wreck.
			if afterPath, capErr := p.capture(ctx, sess.ID, step, "after"); capErr == nil {
				rec.AfterPath = afterPath
			}
			return p.failStep(ctx, sess, rec, "Instruction execution failed.")
		}
	}

	// 6. Observe again: after-snapshot. Also fatal on fault.
	afterPath, err := p.capture(ctx, sess.ID, step, "after")
	if err != nil {
		rec.Outcome = schemas.OutcomeFail
		rec.FailureDetail = "Capture Error: " + err.Error()
		return p.failStep(ctx, sess, rec, "Screen capture failed after execution.")
	}
	rec.AfterPath = afterPath

	// 7. Verify the visible effect. A nil verdict is unknown and does not
	// block; a definite false is fatal. The check keys on the thought, not
	// the script, so a step that claimed an action but degraded to noop
	// still faces the verifier.
	rec.Outcome = schemas.OutcomePass
	if p.deps.Verifier != nil && strings.TrimSpace(decision.Thought) != "" {
		if verdict := p.deps.Verifier.VerifyStep(ctx, decision.Thought, afterPath, envContext); verdict != nil {
			achieved := verdict.Achieved
			rec.VerifyAchieved = &achieved
			rec.VerifyReason = verdict.Reason
			if !achieved {
				rec.Outcome = schemas.OutcomeFail
				rec.FailureDetail = "Verification Error: " + verdict.Reason
				return p.failStep(ctx, sess, rec, "Step verification reported the action did not occur.")
			}
		}
	}

	// 8. Checkpoint snapshot, best effort.
	if containsInt(sess.Checkpoints, step) {
		if cpPath, cpErr := p.capture(ctx, sess.ID, step, "checkpoint"); cpErr != nil {
			p.logger.Warn("Checkpoint snapshot failed", zap.Int("step", step), zap.Error(cpErr))
		} else {
			p.logger.Info("Checkpoint snapshot captured", zap.Int("step", step), zap.String("path", cpPath))
		}
	}

	// 9. Persist the record, then transition.
	if err := p.deps.Store.AppendStepRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist step record: %w", err)
	}

	switch decision.Status {
	case schemas.DecisionSuccess:
		return p.finish(ctx, sess, schemas.StatusSuccess, "Engine reported the goal achieved.")
	case schemas.DecisionLost:
		return p.finish(ctx, sess, schemas.StatusStuck, "Engine reported it cannot make progress.")
	default:
		if sess.StepNumber >= sess.MaxSteps {
			return p.finish(ctx, sess, schemas.StatusLost, "Step budget exhausted without a verdict.")
		}
		p.logger.Info("Step complete",
			zap.String("session_id", sess.ID),
			zap.Int("step", step),
			zap.String("summary", rec.ActionSummary),
		)
		return nil
	}
}

// decide obtains a non-nil decision: the live engine when configured and
// parseable, the deterministic fallback otherwise.
func (p *Pipeline) decide(ctx context.Context, goal string, history []schemas.StepRecord, isFirst bool, envContext, snapshotPath string) *schemas.Decision {
	if p.deps.Engine != nil {
		if d := p.deps.Engine.Decide(ctx, goal, history, isFirst, envContext, snapshotPath); d != nil {
			return d
		}
		p.logger.Warn("Live engine yielded no decision; using fallback.")
	}
	return p.deps.Fallback.Decide(ctx, goal, history, isFirst, envContext, snapshotPath)
}

// resolveInstruction turns a decision into an executable script.
// Already-valid scripts pass through. A missing/no-op instruction with a
// non-blank thought, or a natural-language instruction, goes through the
// translator chain (rule translator, then the engine's translate-only call);
// when the whole chain misses the step degrades to noop.
func (p *Pipeline) resolveInstruction(ctx context.Context, d *schemas.Decision, envContext string) string {
	description := d.Instruction
	if action.IsNoop(d.Instruction) {
		if strings.TrimSpace(d.Thought) == "" {
			return action.NoopScript
		}
		description = d.Thought
	} else if _, err := action.ParseScript(d.Instruction); err == nil {
		return d.Instruction
	}

	if p.deps.Translator != nil {
		if script := p.deps.Translator.Translate(description, envContext); script != "" {
			if _, err := action.ParseScript(script); err == nil {
				return script
			}
			p.logger.Warn("Rule translation produced an invalid script; escalating.", zap.String("script", script))
		}
	}

	if p.deps.Engine != nil {
		if script := p.deps.Engine.TranslateStep(ctx, description, envContext); script != "" {
			if _, err := action.ParseScript(script); err == nil {
				return script
			}
			p.logger.Warn("Engine translation produced an invalid script; degrading to noop.", zap.String("script", script))
		}
	}

	p.logger.Debug("Step untranslatable; degrading to noop.", zap.String("description", clip(description, 120)))
	return action.NoopScript
}

// adoptPlan applies the first decision's plan: the budget becomes
// max(minStepBudget, planned, current step) and the checkpoints are adopted
// verbatim. A plan is adopted at most once per session.
func (p *Pipeline) adoptPlan(sess *schemas.Session, d *schemas.Decision, step int) {
	if d.PlannedStepCount > 0 {
		revised := maxInt(minStepBudget, maxInt(d.PlannedStepCount, step))
		p.logger.Info("Adopting engine plan",
			zap.Int("planned_steps", d.PlannedStepCount),
			zap.Int("revised_budget", revised),
			zap.Ints("checkpoints", d.Checkpoints),
		)
		sess.MaxSteps = revised
		sess.PlannedSteps = d.PlannedStepCount
	}
	if len(d.Checkpoints) > 0 {
		sess.Checkpoints = d.Checkpoints
	}
}

// failStep persists the failing record and ends the session in StatusError.
func (p *Pipeline) failStep(ctx context.Context, sess *schemas.Session, rec schemas.StepRecord, reason string) error {
	rec.FailureDetail = schemas.ClampFailureDetail(rec.FailureDetail)
	sess.StepNumber = rec.StepNumber
	if err := p.deps.Store.AppendStepRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist failing step record: %w", err)
	}
	return p.finish(ctx, sess, schemas.StatusError, reason)
}

// finish transitions the session to a terminal state, exactly once.
func (p *Pipeline) finish(ctx context.Context, sess *schemas.Session, status schemas.SessionStatus, reason string) error {
	sess.Status = status
	if err := p.deps.Store.UpdateSessionStatus(ctx, sess.ID, status); err != nil {
		return fmt.Errorf("failed to persist terminal status: %w", err)
	}
	p.logger.Info("Session finished",
		zap.String("session_id", sess.ID),
		zap.String("status", string(status)),
		zap.Int("steps", sess.StepNumber),
		zap.String("reason", reason),
	)
	return nil
}

func (p *Pipeline) capture(ctx context.Context, sessionID string, step int, label string) (string, error) {
	path := filepath.Join(p.deps.ScreenshotsDir, sessionID, fmt.Sprintf("step_%02d_%s.png", step, label))
	return p.deps.Capturer.Capture(ctx, path)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
