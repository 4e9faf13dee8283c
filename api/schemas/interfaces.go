package schemas

import (
	"context"
)

// -- Store Interface --

// Store is the persistence collaborator for sessions, step records, and
// post-mortems. Implementations must make each write atomic and durable;
// the pipeline relies on that to keep the audit trail consistent on every
// fatal path.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status SessionStatus) error
	// UpdateSessionPlan persists the budget/checkpoint revision adopted from
	// the first decision, plus the current step number.
	UpdateSessionPlan(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// ListSessions returns summaries ordered by descending creation time.
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)

	AppendStepRecord(ctx context.Context, rec StepRecord) error
	ListStepRecords(ctx context.Context, sessionID string) ([]StepRecord, error)
	// ListFailureRecords returns the session's records whose outcome is Fail
	// or whose failure detail mentions an error indicator.
	ListFailureRecords(ctx context.Context, sessionID string) ([]StepRecord, error)

	// CreatePostMortem persists the artifact only if none exists for the
	// session yet (write-once invariant). Returns true when a row was written.
	CreatePostMortem(ctx context.Context, pm PostMortem) (bool, error)
	GetPostMortem(ctx context.Context, sessionID string) (*PostMortem, error)

	// ListRuleCandidates mines the audit trail for translation-rule material:
	// records with a non-trivial instruction, grouped by
	// (thought, instruction, outcome), most frequent first.
	ListRuleCandidates(ctx context.Context) ([]RuleCandidate, error)
}

// -- Loop Collaborator Interfaces --

// ReasoningClient is the logical contract of the external reasoning engine.
// A nil Decision with a nil error means the engine was unreachable or its
// reply could not be parsed; the caller must fall back to a local decision
// rather than stall.
type ReasoningClient interface {
	// Decide asks the engine for the next step given the goal, the ordered
	// prior step records, and a snapshot of the current screen.
	Decide(ctx context.Context, goal string, history []StepRecord, isFirstStep bool, envContext, snapshotPath string) *Decision
	// TranslateStep asks the engine to turn a natural-language step
	// description into an instruction script. Returns "" on failure.
	TranslateStep(ctx context.Context, description, envContext string) string
}

// Verifier is the logical contract of the external vision-grounded verifier.
// A nil result means "unknown/skipped", which callers must treat as distinct
// from {Achieved: false}.
type Verifier interface {
	// VerifyStep asks whether the action described in intendedThought visibly
	// occurred in the after-snapshot.
	VerifyStep(ctx context.Context, intendedThought, afterSnapshotPath, envContext string) *VerificationResult
	// VerifyGoal asks whether the goal is visibly satisfied in the final
	// snapshot. Advisory only; never alters session status.
	VerifyGoal(ctx context.Context, goal, finalSnapshotPath, envContext string) *VerificationResult
}

// Capturer is the screenshot collaborator. Capture writes an image to path
// and returns the path actually written; any error is a capture fault, which
// is fatal to the session.
type Capturer interface {
	Capture(ctx context.Context, path string) (string, error)
}

// Executor runs one instruction script against the live environment. A
// returned error is an execution fault: fatal, never retried, its message
// preserved verbatim as the step's failure detail.
type Executor interface {
	Execute(ctx context.Context, script string) error
}

// Translator converts a natural-language step description into an instruction
// script. Returns "" when no rule matches, signalling the caller to escalate
// to the reasoning engine.
type Translator interface {
	Translate(description, envContext string) string
}

// -- LLM Client Schemas & Interface --

// ImageAttachment carries raw image bytes for a multimodal request.
type ImageAttachment struct {
	MIMEType string
	Data     []byte
}

// GenerationOptions controls the text generation of the reasoning engine.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// GenerationRequest encapsulates one request to the reasoning engine: system
// and user prompts, an optional screenshot, and generation options.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Image        *ImageAttachment
	Options      GenerationOptions
}

// LLMClient abstracts the reasoning-engine transport. Generate returns the
// raw text reply; parsing and validation live with the caller.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
