package reason

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/envinfo"
)

// StubClient is the deterministic offline engine used when no API key is
// configured (or the stub is forced). It walks the canonical calculator demo
// so the whole loop stays exercisable without network access.
type StubClient struct {
	logger *zap.Logger
}

// NewStubClient creates the offline engine.
func NewStubClient(logger *zap.Logger) *StubClient {
	return &StubClient{logger: logger.Named("reason.stub")}
}

// Decide returns a fixed decision keyed on the current step number
// (len(history)+1). Never returns nil.
func (s *StubClient) Decide(_ context.Context, goal string, history []schemas.StepRecord, isFirstStep bool, envContext, _ string) *schemas.Decision {
	step := len(history) + 1
	s.logger.Info("Stub engine deciding", zap.Int("step", step), zap.String("goal", goal))

	switch {
	case isFirstStep || step == 1:
		return &schemas.Decision{
			Thought:          "Starting fresh; the first move is to open the calculator application.",
			Instruction:      launcherScript(envContext),
			Status:           schemas.DecisionContinue,
			PlannedStepCount: 3,
			Checkpoints:      []int{2},
		}
	case step == 2:
		return &schemas.Decision{
			Thought:     "The application should be open now; typing the demo text.",
			Instruction: `type "Hello World"`,
			Status:      schemas.DecisionSuccess,
		}
	default:
		return &schemas.Decision{
			Thought:     "Nothing further to do.",
			Instruction: "noop",
			Status:      schemas.DecisionSuccess,
		}
	}
}

// TranslateStep always defers: the stub has no compilation ability beyond the
// rule-based translator the pipeline already consulted.
func (s *StubClient) TranslateStep(context.Context, string, string) string { return "" }

func launcherScript(envContext string) string {
	if envinfo.IsMacOS(envContext) {
		return `hotkey command space; wait 600ms; type "Calculator"; press enter`
	}
	return fmt.Sprintf(`hotkey %s r; wait 600ms; type "calc"; press enter`, envinfo.ModifierKey(envContext))
}
