package reason

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/mocks"
)

const testEnv = "macOS; arm64; Browser: unknown"

func newTestClient(t *testing.T) (*Client, *mocks.MockLLMClient) {
	t.Helper()
	llm := &mocks.MockLLMClient{}
	return NewClient(llm, 5*time.Second, zaptest.NewLogger(t)), llm
}

func TestDecideParsesFencedReply(t *testing.T) {
	client, llm := newTestClient(t)
	llm.On("Generate", mock.Anything, mock.Anything).Return("Here is my plan:\n```json\n"+
		`{"thought": "Open the app first.", "instruction": "hotkey command space", "status": "CONTINUE", "planned_step_count": 3, "checkpoints": [2, 3]}`+
		"\n```", nil)

	d := client.Decide(context.Background(), "goal", nil, true, testEnv, "")
	require.NotNil(t, d)
	assert.Equal(t, "Open the app first.", d.Thought)
	assert.Equal(t, "hotkey command space", d.Instruction)
	assert.Equal(t, schemas.DecisionContinue, d.Status)
	assert.Equal(t, 3, d.PlannedStepCount)
	assert.Equal(t, []int{2, 3}, d.Checkpoints)
}

func TestDecideParsesBareAndEmbeddedObjects(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{"bare object", `{"thought": "t", "instruction": "noop", "status": "SUCCESS"}`},
		{"object in prose", `Sure! Based on the screen I'd say {"thought": "t", "instruction": "noop", "status": "SUCCESS"} - good luck!`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, llm := newTestClient(t)
			llm.On("Generate", mock.Anything, mock.Anything).Return(tc.reply, nil)

			d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
			require.NotNil(t, d)
			assert.Equal(t, schemas.DecisionSuccess, d.Status)
		})
	}
}

func TestDecideNormalization(t *testing.T) {
	t.Run("reasoning key substitutes for thought", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"reasoning": "fallback key", "instruction": "noop", "status": "CONTINUE"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, "fallback key", d.Thought)
	})

	t.Run("missing instruction defaults to noop", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "hmm", "status": "CONTINUE"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, "noop", d.Instruction)
	})

	t.Run("unknown status coerces to CONTINUE", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "t", "instruction": "noop", "status": "MAYBE?"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, schemas.DecisionContinue, d.Status)
	})

	t.Run("lowercase status is accepted", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "t", "instruction": "noop", "status": "lost"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, schemas.DecisionLost, d.Status)
	})

	t.Run("planned count as numeric string", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "t", "instruction": "noop", "status": "CONTINUE", "planned_step_count": "4", "checkpoints": [1, "2", "soon", 3]}`, nil)

		d := client.Decide(context.Background(), "goal", nil, true, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, 4, d.PlannedStepCount)
		assert.Equal(t, []int{1, 2, 3}, d.Checkpoints, "non-integer checkpoints are skipped")
	})

	t.Run("prose planned count degrades to absent, decision kept", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "done", "instruction": "noop", "status": "SUCCESS", "planned_step_count": "a few"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, true, testEnv, "")
		require.NotNil(t, d, "a sloppy plan field must not discard the decision")
		assert.Equal(t, schemas.DecisionSuccess, d.Status)
		assert.Zero(t, d.PlannedStepCount)
	})

	t.Run("non-list checkpoints degrade to empty, decision kept", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "t", "instruction": "noop", "status": "LOST", "planned_step_count": 2, "checkpoints": "2"}`, nil)

		d := client.Decide(context.Background(), "goal", nil, true, testEnv, "")
		require.NotNil(t, d)
		assert.Equal(t, schemas.DecisionLost, d.Status)
		assert.Equal(t, 2, d.PlannedStepCount)
		assert.Empty(t, d.Checkpoints)
	})

	t.Run("plan fields ignored after the first step", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(`{"thought": "t", "instruction": "noop", "status": "CONTINUE", "planned_step_count": 9, "checkpoints": [5]}`, nil)

		d := client.Decide(context.Background(), "goal", nil, false, testEnv, "")
		require.NotNil(t, d)
		assert.Zero(t, d.PlannedStepCount)
		assert.Empty(t, d.Checkpoints)
	})
}

func TestDecideReturnsNilOnFailure(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

		assert.Nil(t, client.Decide(context.Background(), "goal", nil, false, testEnv, ""))
	})

	t.Run("no JSON object anywhere", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).Return("I am sorry, I cannot help with that.", nil)

		assert.Nil(t, client.Decide(context.Background(), "goal", nil, false, testEnv, ""))
	})
}

func TestDecideCompactsHistoryInPrompt(t *testing.T) {
	client, llm := newTestClient(t)

	longThought := ""
	for i := 0; i < 40; i++ {
		longThought += "thinking "
	}

	var captured schemas.GenerationRequest
	llm.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(schemas.GenerationRequest)
		}).
		Return(`{"thought": "t", "instruction": "noop", "status": "CONTINUE"}`, nil)

	history := []schemas.StepRecord{{
		StepNumber:  1,
		Thought:     longThought,
		Instruction: "noop",
		Outcome:     schemas.OutcomePass,
	}}
	require.NotNil(t, client.Decide(context.Background(), "goal", history, false, testEnv, ""))

	assert.Contains(t, captured.UserPrompt, longThought[:200]+"...")
	assert.NotContains(t, captured.UserPrompt, longThought, "full thought must not reach the prompt")
}

func TestTranslateStep(t *testing.T) {
	t.Run("strips code fences", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).
			Return("```\ntype \"3+3\"; press enter\n```", nil)

		script := client.TranslateStep(context.Background(), "type 3+3 and press enter", testEnv)
		assert.Equal(t, `type "3+3"; press enter`, script)
	})

	t.Run("returns empty on transport error", func(t *testing.T) {
		client, llm := newTestClient(t)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

		assert.Empty(t, client.TranslateStep(context.Background(), "anything", testEnv))
	})
}

func TestStubClientWalksTheDemo(t *testing.T) {
	stub := NewStubClient(zaptest.NewLogger(t))
	ctx := context.Background()

	first := stub.Decide(ctx, "goal", nil, true, testEnv, "")
	require.NotNil(t, first)
	assert.Equal(t, schemas.DecisionContinue, first.Status)
	assert.Equal(t, 3, first.PlannedStepCount)
	assert.Equal(t, []int{2}, first.Checkpoints)
	assert.Contains(t, first.Instruction, "Calculator")

	second := stub.Decide(ctx, "goal", []schemas.StepRecord{{StepNumber: 1}}, false, testEnv, "")
	require.NotNil(t, second)
	assert.Equal(t, schemas.DecisionSuccess, second.Status)
	assert.Contains(t, second.Instruction, "Hello World")

	third := stub.Decide(ctx, "goal", []schemas.StepRecord{{StepNumber: 1}, {StepNumber: 2}}, false, testEnv, "")
	require.NotNil(t, third)
	assert.Equal(t, "noop", third.Instruction)
	assert.Equal(t, schemas.DecisionSuccess, third.Status)

	t.Run("windows launcher variant", func(t *testing.T) {
		d := stub.Decide(ctx, "goal", nil, true, "Windows; amd64", "")
		require.NotNil(t, d)
		assert.Contains(t, d.Instruction, "hotkey win r")
	})
}
