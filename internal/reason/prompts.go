package reason

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

const decideSystemPrompt = `You are an autonomous desktop operator. You observe a screenshot of the
current screen, reason about the user's goal, and decide exactly one next
step. You control the machine only through this instruction vocabulary,
joined with semicolons:

  move X Y            - move the mouse to pixel coordinates
  click [left|right|double]
  type "text"         - type literal text
  press KEY           - press one key (enter, tab, escape, ...)
  hotkey K1 K2 [K3]   - press a key combination (e.g. hotkey command space)
  wait DURATION       - pause (e.g. wait 600ms)
  noop                - do nothing

Respond with ONLY a JSON object:
{
  "thought": "<what you observe and why this step>",
  "instruction": "<one instruction script, or a short natural-language step description>",
  "status": "CONTINUE" | "SUCCESS" | "LOST"
}

Report SUCCESS only when the screenshot shows the goal is already achieved.
Report LOST only when you cannot make progress at all.`

const firstStepAddendum = `

This is the FIRST step. Additionally include your plan:
  "planned_step_count": <total number of steps you expect the task to take>,
  "checkpoints": [<step numbers at which progress should be visually validated>]`

const translateSystemPrompt = `You translate one natural-language desktop step into an instruction script.
The vocabulary, joined with semicolons: move X Y; click [left|right|double];
type "text"; press KEY; hotkey K1 K2 [K3]; wait DURATION; noop.
Output ONLY the script, no prose, no code fences.`

const (
	historyThoughtLimit     = 200
	historyInstructionLimit = 150
)

// buildDecidePrompt renders the user prompt for one decision: goal,
// environment context, and the compacted step history.
func buildDecidePrompt(goal string, history []schemas.StepRecord, envContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", goal)
	fmt.Fprintf(&b, "ENVIRONMENT: %s\n", envContext)

	if len(history) == 0 {
		b.WriteString("\nNo steps have been taken yet.\n")
	} else {
		b.WriteString("\nSTEPS SO FAR:\n")
		for _, rec := range history {
			fmt.Fprintf(&b, "%d. [%s] %s\n   ran: %s\n",
				rec.StepNumber,
				rec.Outcome,
				clip(rec.Thought, historyThoughtLimit),
				clip(rec.Instruction, historyInstructionLimit),
			)
			if rec.FailureDetail != "" {
				fmt.Fprintf(&b, "   error: %s\n", clip(rec.FailureDetail, historyInstructionLimit))
			}
		}
	}

	b.WriteString("\nThe attached screenshot shows the screen right now. Decide the next step.")
	return b.String()
}

func buildTranslatePrompt(description, envContext string) string {
	return fmt.Sprintf("ENVIRONMENT: %s\nSTEP: %s", envContext, description)
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
