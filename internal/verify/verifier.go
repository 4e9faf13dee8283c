// Package verify implements the vision-grounded verification contract: given
// an after-action snapshot, it asks the engine whether the intended effect (or
// the whole goal) is visible. Results are advisory at the goal level and
// binding at the step level; an unreachable or unparseable engine yields nil,
// which callers treat as "unknown", never as failure.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/llmutil"
)

const stepSystemPrompt = `You are a meticulous QA inspector for a desktop automation agent. You are
shown a screenshot taken immediately AFTER an action was attempted, and the
agent's stated intent for that action. Judge ONLY what is visible.

Respond with ONLY a JSON object:
{"achieved": true|false, "reason": "<one sentence citing visible evidence>"}`

const goalSystemPrompt = `You are a meticulous QA inspector for a desktop automation agent. You are
shown the final screenshot of a completed run and the original goal. Judge
ONLY what is visible: is the goal satisfied on screen?

Respond with ONLY a JSON object:
{"achieved": true|false, "reason": "<one sentence citing visible evidence>"}`

// Verifier implements schemas.Verifier over an LLM transport.
type Verifier struct {
	llm     schemas.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// New wires a transport into a verifier.
func New(llm schemas.LLMClient, timeout time.Duration, logger *zap.Logger) *Verifier {
	return &Verifier{llm: llm, timeout: timeout, logger: logger.Named("verify")}
}

// flexBool accepts the truthiness spellings engines actually produce:
// booleans, "true"/"yes" strings, and 0/1 numbers.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			*f = true
		default:
			*f = false
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}
	return fmt.Errorf("cannot interpret %s as a boolean", string(data))
}

type verdictWire struct {
	Achieved *flexBool `json:"achieved"`
	Reason   string    `json:"reason"`
}

// VerifyStep judges whether the intended action visibly occurred.
func (v *Verifier) VerifyStep(ctx context.Context, intendedThought, afterSnapshotPath, envContext string) *schemas.VerificationResult {
	prompt := fmt.Sprintf("ENVIRONMENT: %s\nINTENDED ACTION: %s\n\nDoes the attached screenshot show this action took effect?",
		envContext, intendedThought)
	return v.ask(ctx, stepSystemPrompt, prompt, afterSnapshotPath)
}

// VerifyGoal judges whether the goal is visibly satisfied in the final
// snapshot. Advisory only.
func (v *Verifier) VerifyGoal(ctx context.Context, goal, finalSnapshotPath, envContext string) *schemas.VerificationResult {
	prompt := fmt.Sprintf("ENVIRONMENT: %s\nORIGINAL GOAL: %s\n\nDoes the attached screenshot show the goal is achieved?",
		envContext, goal)
	return v.ask(ctx, goalSystemPrompt, prompt, finalSnapshotPath)
}

func (v *Verifier) ask(ctx context.Context, system, prompt, snapshotPath string) *schemas.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	reply, err := v.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   prompt,
		Image:        llmutil.LoadImageAttachment(snapshotPath, v.logger),
	})
	if err != nil {
		v.logger.Warn("Verifier unreachable; verdict unknown.", zap.Error(err))
		return nil
	}

	wire, err := llmutil.ParseJSONResponse[verdictWire](reply)
	if err != nil || wire.Achieved == nil {
		v.logger.Warn("Verifier reply unparseable; verdict unknown.", zap.Error(err))
		return nil
	}

	reason := strings.TrimSpace(wire.Reason)
	if reason == "" {
		reason = "No reason given."
	}
	return &schemas.VerificationResult{Achieved: bool(*wire.Achieved), Reason: reason}
}
