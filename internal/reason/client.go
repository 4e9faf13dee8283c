// Package reason implements the reasoning-engine contract: it turns the
// session goal, the step history, and a screen snapshot into one structured
// Decision per step. Parsing is deliberately forgiving: the engine's reply
// only has to contain a JSON object somewhere, and every hard failure
// degrades to a nil Decision so the pipeline can fall back locally.
package reason

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/llmutil"
)

// Client implements schemas.ReasoningClient over an LLM transport.
type Client struct {
	llm           schemas.LLMClient
	decideTimeout time.Duration
	logger        *zap.Logger
}

// NewClient wires a transport into a reasoning client.
func NewClient(llm schemas.LLMClient, decideTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		llm:           llm,
		decideTimeout: decideTimeout,
		logger:        logger.Named("reason"),
	}
}

// flexInt unmarshals from a JSON number or a numeric string. Engines are not
// consistent about which they emit for counts. Anything else becomes zero
// rather than an error: a sloppy plan field must not poison the decision
// carrying it.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, perr := strconv.Atoi(strings.TrimSpace(s)); perr == nil {
			*f = flexInt(parsed)
			return nil
		}
	}
	*f = 0
	return nil
}

// flexIntList tolerates a non-list value (treated as empty) and skips
// non-integer elements.
type flexIntList []int

func (l *flexIntList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make(flexIntList, 0, len(raw))
	for _, item := range raw {
		var v flexInt
		_ = v.UnmarshalJSON(item)
		out = append(out, int(v))
	}
	*l = out
	return nil
}

// decisionWire is the raw shape parsed from the engine reply before
// normalization into a schemas.Decision.
type decisionWire struct {
	Thought          string            `json:"thought"`
	Reasoning        string            `json:"reasoning"` // some models use this key instead
	Instruction      string            `json:"instruction"`
	Status           string      `json:"status"`
	PlannedStepCount *flexInt    `json:"planned_step_count"`
	Checkpoints      flexIntList `json:"checkpoints"`
}

// Decide asks the engine for the next step. Any transport or parse failure
// returns nil; the caller substitutes a local decision.
func (c *Client) Decide(ctx context.Context, goal string, history []schemas.StepRecord, isFirstStep bool, envContext, snapshotPath string) *schemas.Decision {
	ctx, cancel := context.WithTimeout(ctx, c.decideTimeout)
	defer cancel()

	system := decideSystemPrompt
	if isFirstStep {
		system += firstStepAddendum
	}

	req := schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   buildDecidePrompt(goal, history, envContext),
		Image:        llmutil.LoadImageAttachment(snapshotPath, c.logger),
	}

	reply, err := c.llm.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("Engine unreachable; deferring to local decision.", zap.Error(err))
		return nil
	}

	wire, err := llmutil.ParseJSONResponse[decisionWire](reply)
	if err != nil {
		c.logger.Warn("Engine reply unparseable; deferring to local decision.",
			zap.Error(err), zap.Int("reply_len", len(reply)))
		return nil
	}

	return normalize(wire, isFirstStep)
}

// normalize coerces a raw wire decision into the strict Decision contract:
// every field gets a defined value regardless of what the engine emitted.
func normalize(wire *decisionWire, isFirstStep bool) *schemas.Decision {
	d := &schemas.Decision{
		Thought:     strings.TrimSpace(wire.Thought),
		Instruction: strings.TrimSpace(wire.Instruction),
	}
	if d.Thought == "" {
		d.Thought = strings.TrimSpace(wire.Reasoning)
	}
	if d.Thought == "" {
		d.Thought = "No thought provided."
	}
	if d.Instruction == "" {
		d.Instruction = "noop"
	}

	switch schemas.DecisionStatus(strings.ToUpper(strings.TrimSpace(wire.Status))) {
	case schemas.DecisionSuccess:
		d.Status = schemas.DecisionSuccess
	case schemas.DecisionLost:
		d.Status = schemas.DecisionLost
	default:
		// Unknown or missing verdicts keep the loop moving.
		d.Status = schemas.DecisionContinue
	}

	if isFirstStep {
		if wire.PlannedStepCount != nil && int(*wire.PlannedStepCount) > 0 {
			d.PlannedStepCount = int(*wire.PlannedStepCount)
		}
		for _, cp := range wire.Checkpoints {
			if cp > 0 {
				d.Checkpoints = append(d.Checkpoints, cp)
			}
		}
	}

	return d
}

// TranslateStep asks the engine to compile a step description into an
// instruction script. Returns "" on any failure.
func (c *Client) TranslateStep(ctx context.Context, description, envContext string) string {
	ctx, cancel := context.WithTimeout(ctx, c.decideTimeout)
	defer cancel()

	reply, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: translateSystemPrompt,
		UserPrompt:   buildTranslatePrompt(description, envContext),
	})
	if err != nil {
		c.logger.Warn("Engine translation failed.", zap.Error(err))
		return ""
	}
	return llmutil.CleanCodeOutput(reply)
}
