package schemas

import (
	"time"
	"unicode/utf8"
)

// SessionStatus enumerates the lifecycle states of a task session. A session
// starts in StatusRunning; every other value is terminal and is never
// revisited once set.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusSuccess SessionStatus = "success" // Engine reported SUCCESS.
	StatusStuck   SessionStatus = "stuck"   // Engine reported LOST.
	StatusLost    SessionStatus = "lost"    // Step budget exhausted without SUCCESS/LOST.
	StatusError   SessionStatus = "error"   // Capture, execution, or step-verification fault.
)

// IsTerminal reports whether the status ends the session.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusStuck || s == StatusLost || s == StatusError
}

// DecisionStatus is the reasoning engine's per-step verdict.
type DecisionStatus string

const (
	DecisionContinue DecisionStatus = "CONTINUE"
	DecisionSuccess  DecisionStatus = "SUCCESS"
	DecisionLost     DecisionStatus = "LOST"
)

// StepOutcome records whether a step's instruction executed cleanly.
type StepOutcome string

const (
	OutcomePass StepOutcome = "Pass"
	OutcomeFail StepOutcome = "Fail"
)

// Session is one run of the loop toward one goal. It is owned exclusively by
// the pipeline for its lifetime and persisted by the store for audit/history.
type Session struct {
	ID      string
	Goal    string
	Status  SessionStatus
	// MaxSteps is the step budget. It is mutable exactly once: on the first
	// decision, if the engine declares a plan length, the budget becomes
	// max(2, planned); see Pipeline.adoptPlan.
	MaxSteps int
	// StepNumber is the step currently being executed, starting at 1.
	StepNumber int
	// PlannedSteps is the engine's declared plan length, if any (informational).
	PlannedSteps int
	// Checkpoints are step numbers at which an extra validation snapshot is
	// captured. Adopted verbatim from the first decision; values beyond the
	// budget simply never fire.
	Checkpoints []int
	// Browser is an optional user-supplied hint included in the environment
	// description ("Firefox", "Chrome", ...).
	Browser   string
	CreatedAt time.Time
}

// StepRecord is the full audit trail of one iteration. Records are created
// once per step, append-only, and never mutated after persistence.
type StepRecord struct {
	SessionID   string
	StepNumber  int
	Thought     string
	Instruction string
	// ActionSummary is a short display summary of the thought (120 chars).
	ActionSummary string
	// FailureDetail holds the execution fault or verifier reason, capped to
	// MaxFailureDetailLen before persistence. Empty on Pass.
	FailureDetail  string
	DecisionStatus DecisionStatus
	Outcome        StepOutcome
	BeforePath     string
	AfterPath      string
	// VerifyAchieved is nil when step verification was skipped/unreachable,
	// which is distinct from a definite false.
	VerifyAchieved *bool
	VerifyReason   string
	CreatedAt      time.Time
}

// MaxFailureDetailLen bounds the failure detail persisted with a StepRecord.
const MaxFailureDetailLen = 8192

// ClampFailureDetail caps s at MaxFailureDetailLen bytes, backing off to the
// nearest rune boundary so the stored detail stays valid UTF-8.
func ClampFailureDetail(s string) string {
	if len(s) <= MaxFailureDetailLen {
		return s
	}
	n := MaxFailureDetailLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Decision is the reasoning engine's structured output for one step.
// Transient; its fields land in a StepRecord but it is not persisted itself.
type Decision struct {
	Thought     string
	Instruction string
	Status      DecisionStatus
	// PlannedStepCount and Checkpoints are only populated on the first step
	// of a session. PlannedStepCount is 0 when absent or non-positive.
	PlannedStepCount int
	Checkpoints      []int
}

// VerificationResult is the vision verifier's yes/no/reason judgment.
// A nil *VerificationResult means "unknown/skipped", not "failed".
type VerificationResult struct {
	Achieved bool   `json:"achieved"`
	Reason   string `json:"reason"`
}

// PostMortem is the write-once lessons-learned artifact for a session.
type PostMortem struct {
	SessionID       string
	OriginalGoal    string
	OptimizedPrompt string
	Summary         string
	// Validation is the end-of-run goal verification, when one was performed.
	Validation *VerificationResult
	CreatedAt  time.Time
}

// SessionSummary is the history-listing projection of a session.
type SessionSummary struct {
	ID        string
	Goal      string
	Status    SessionStatus
	CreatedAt time.Time
}

// RuleCandidate is one (thought, instruction, outcome) group mined from the
// audit trail by the rule-ingestion utility.
type RuleCandidate struct {
	Thought     string
	Instruction string
	Outcome     StepOutcome
	Count       int
}
