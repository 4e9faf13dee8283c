// Package postmortem synthesizes the write-once lessons-learned artifact for
// a finished session: an optimized prompt distilled from the failures on
// record, plus an advisory end-of-run goal verification for successful runs.
package postmortem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// Synthesizer builds and persists post-mortems.
type Synthesizer struct {
	store    schemas.Store
	verifier schemas.Verifier
	logger   *zap.Logger
}

// New creates a synthesizer. verifier may be nil; goal validation is then
// skipped.
func New(store schemas.Store, verifier schemas.Verifier, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{store: store, verifier: verifier, logger: logger.Named("postmortem")}
}

// Synthesize builds the post-mortem for a terminal session and persists it,
// honoring the write-once invariant: if one already exists, the existing
// artifact is returned unchanged.
func (s *Synthesizer) Synthesize(ctx context.Context, sess schemas.Session, envContext string) (*schemas.PostMortem, error) {
	if !sess.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot synthesize post-mortem for non-terminal session %s (%s)", sess.ID, sess.Status)
	}

	if existing, err := s.store.GetPostMortem(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("failed to check for existing post-mortem: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	failures, err := s.store.ListFailureRecords(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load failure records: %w", err)
	}

	notes := failureNotes(failures)
	pm := schemas.PostMortem{
		SessionID:       sess.ID,
		OriginalGoal:    sess.Goal,
		OptimizedPrompt: optimizedPrompt(sess.Goal, notes),
		Summary:         summarize(sess, len(failures)),
		CreatedAt:       time.Now(),
	}

	// Advisory end-of-run verification, success only; never alters status.
	if s.verifier != nil && sess.Status == schemas.StatusSuccess {
		if finalPath := finalSnapshot(ctx, s.store, sess.ID); finalPath != "" {
			pm.Validation = s.verifier.VerifyGoal(ctx, sess.Goal, finalPath, envContext)
		}
	}

	created, err := s.store.CreatePostMortem(ctx, pm)
	if err != nil {
		return nil, fmt.Errorf("failed to persist post-mortem: %w", err)
	}
	if !created {
		// Lost the write-once race; return what is on record.
		existing, err := s.store.GetPostMortem(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload post-mortem: %w", err)
		}
		return existing, nil
	}

	s.logger.Info("Post-mortem synthesized",
		zap.String("session_id", sess.ID),
		zap.Int("failures", len(failures)),
	)
	return &pm, nil
}

// failureNotes renders the avoided-mistakes bullet list from the failure
// records, or the all-clear line when there were none.
func failureNotes(failures []schemas.StepRecord) string {
	if len(failures) == 0 {
		return "No errors encountered."
	}
	var b strings.Builder
	for i, rec := range failures {
		if i > 0 {
			b.WriteString("\n")
		}
		detail := rec.FailureDetail
		if detail == "" {
			detail = "the step did not have its intended effect"
		}
		fmt.Fprintf(&b, "- Avoided: %s because %s", rec.Instruction, detail)
	}
	return b.String()
}

func optimizedPrompt(goal, notes string) string {
	return fmt.Sprintf("OPTIMIZED PROMPT FOR '%s':\nAlways do X. %s\n\nOriginal Goal: %s", goal, notes, goal)
}

func summarize(sess schemas.Session, failureCount int) string {
	return fmt.Sprintf("Session ended in status %q after %d step(s) with %d recorded failure(s).",
		sess.Status, sess.StepNumber, failureCount)
}

// finalSnapshot returns the last step's after-snapshot path, or "" when none
// was recorded.
func finalSnapshot(ctx context.Context, store schemas.Store, sessionID string) string {
	records, err := store.ListStepRecords(ctx, sessionID)
	if err != nil || len(records) == 0 {
		return ""
	}
	return records[len(records)-1].AfterPath
}
