// Package action defines the closed instruction vocabulary the loop may
// execute: a script of semicolon-separated primitives (move, click, type,
// press, hotkey, wait, noop) parsed into tagged steps and dispatched to an
// Actuator collaborator. Keeping the vocabulary enumerable means execution
// faults are enumerable too, instead of arbitrary interpreter errors.
package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind tags one primitive step.
type Kind string

const (
	KindMove   Kind = "move"
	KindClick  Kind = "click"
	KindType   Kind = "type"
	KindPress  Kind = "press"
	KindHotkey Kind = "hotkey"
	KindWait   Kind = "wait"
	KindNoop   Kind = "noop"
)

// Step is one parsed primitive. Only the fields relevant to its Kind are set.
type Step struct {
	Kind   Kind
	X, Y   int           // move
	Button string        // click: left, right, double
	Text   string        // type
	Key    string        // press
	Keys   []string      // hotkey
	Delay  time.Duration // wait
}

// NoopScript is the canonical do-nothing instruction.
const NoopScript = "noop"

// IsNoop reports whether a script is empty or the explicit no-op.
func IsNoop(script string) bool {
	s := strings.TrimSpace(script)
	return s == "" || strings.EqualFold(s, NoopScript)
}

// ParseScript parses an instruction script into steps. Scripts are
// semicolon-separated; string arguments to `type` are double-quoted.
// An unknown verb or malformed argument is an error: the vocabulary is
// closed on purpose.
func ParseScript(script string) ([]Step, error) {
	var steps []Step
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		step, err := parseStatement(stmt)
		if err != nil {
			return nil, fmt.Errorf("invalid instruction %q: %w", stmt, err)
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return []Step{{Kind: KindNoop}}, nil
	}
	return steps, nil
}

func parseStatement(stmt string) (Step, error) {
	verb, rest, _ := strings.Cut(stmt, " ")
	rest = strings.TrimSpace(rest)

	switch Kind(strings.ToLower(verb)) {
	case KindNoop:
		return Step{Kind: KindNoop}, nil

	case KindMove:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Step{}, fmt.Errorf("move requires X and Y coordinates")
		}
		x, errX := strconv.Atoi(fields[0])
		y, errY := strconv.Atoi(fields[1])
		if errX != nil || errY != nil {
			return Step{}, fmt.Errorf("move coordinates must be integers")
		}
		return Step{Kind: KindMove, X: x, Y: y}, nil

	case KindClick:
		button := strings.ToLower(rest)
		if button == "" {
			button = "left"
		}
		switch button {
		case "left", "right", "double":
		default:
			return Step{}, fmt.Errorf("unknown click button %q", button)
		}
		return Step{Kind: KindClick, Button: button}, nil

	case KindType:
		text, err := unquote(rest)
		if err != nil {
			return Step{}, err
		}
		return Step{Kind: KindType, Text: text}, nil

	case KindPress:
		if rest == "" || len(strings.Fields(rest)) != 1 {
			return Step{}, fmt.Errorf("press requires exactly one key name")
		}
		return Step{Kind: KindPress, Key: strings.ToLower(rest)}, nil

	case KindHotkey:
		keys := strings.Fields(strings.ToLower(rest))
		if len(keys) < 2 || len(keys) > 3 {
			return Step{}, fmt.Errorf("hotkey requires two or three key names")
		}
		return Step{Kind: KindHotkey, Keys: keys}, nil

	case KindWait:
		d, err := time.ParseDuration(rest)
		if err != nil {
			return Step{}, fmt.Errorf("wait requires a duration: %w", err)
		}
		if d < 0 {
			return Step{}, fmt.Errorf("wait duration must not be negative")
		}
		return Step{Kind: KindWait, Delay: d}, nil

	default:
		return Step{}, fmt.Errorf("unknown verb %q", verb)
	}
}

// unquote strips surrounding double quotes when present; bare text is allowed
// so translator payloads like arithmetic expressions survive unquoted.
func unquote(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("type requires text")
	}
	if strings.HasPrefix(s, `"`) {
		if len(s) < 2 || !strings.HasSuffix(s, `"`) {
			return "", fmt.Errorf("unterminated quoted string")
		}
		return s[1 : len(s)-1], nil
	}
	return s, nil
}

// -- Dispatch --

// Actuator is the low-level environment-control collaborator. Implementations
// drive the real mouse and keyboard; any returned error aborts the script.
type Actuator interface {
	MoveMouse(ctx context.Context, x, y int) error
	Click(ctx context.Context, button string) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	KeyCombo(ctx context.Context, keys []string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// interStepDelay gives the UI time to respond between consecutive primitives
// (e.g. Spotlight must appear before we type into it).
const interStepDelay = 600 * time.Millisecond

// Dispatcher executes instruction scripts by pattern-matching parsed steps
// onto an Actuator. It implements schemas.Executor.
type Dispatcher struct {
	actuator Actuator
	logger   *zap.Logger
}

// NewDispatcher wires an actuator into an executor.
func NewDispatcher(actuator Actuator, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{actuator: actuator, logger: logger.Named("dispatcher")}
}

// Execute parses and runs one script. Parse errors and actuator faults are
// both execution faults to the caller; neither is retried here.
func (d *Dispatcher) Execute(ctx context.Context, script string) error {
	steps, err := ParseScript(script)
	if err != nil {
		return err
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Pause between primitives so the previous one can take effect,
		// unless the script paced itself with an explicit wait.
		if i > 0 && step.Kind != KindWait && steps[i-1].Kind != KindWait {
			if err := d.actuator.Sleep(ctx, interStepDelay); err != nil {
				return err
			}
		}
		if err := d.dispatch(ctx, step); err != nil {
			d.logger.Debug("Instruction step failed", zap.String("kind", string(step.Kind)), zap.Error(err))
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, step Step) error {
	switch step.Kind {
	case KindNoop:
		return nil
	case KindMove:
		return d.actuator.MoveMouse(ctx, step.X, step.Y)
	case KindClick:
		return d.actuator.Click(ctx, step.Button)
	case KindType:
		return d.actuator.TypeText(ctx, step.Text)
	case KindPress:
		return d.actuator.PressKey(ctx, step.Key)
	case KindHotkey:
		return d.actuator.KeyCombo(ctx, step.Keys)
	case KindWait:
		return d.actuator.Sleep(ctx, step.Delay)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}
