package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyArg accepts any value (used for timestamps and encoded JSON we don't
// want to pin byte-for-byte).
var anyArg = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	st, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return st, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCreateSession(t *testing.T) {
	st, mockPool := newTestStore(t)
	ctx := context.Background()

	sess := schemas.Session{
		ID:        uuid.NewString(),
		Goal:      "open the calculator",
		Status:    schemas.StatusRunning,
		MaxSteps:  10,
		Browser:   "Firefox",
		CreatedAt: time.Now(),
	}

	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO sessions`)).
		WithArgs(sess.ID, sess.Goal, "running", 10, 0, 0, anyArg, "Firefox", anyArg).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.CreateSession(ctx, sess))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpdateSessionStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("updates an existing session", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE sessions SET status`)).
			WithArgs("sess-1", "success").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, st.UpdateSessionStatus(ctx, "sess-1", schemas.StatusSuccess))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("errors when the session does not exist", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE sessions SET status`)).
			WithArgs("missing", "lost").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := st.UpdateSessionStatus(ctx, "missing", schemas.StatusLost)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestAppendStepRecord(t *testing.T) {
	st, mockPool := newTestStore(t)
	ctx := context.Background()

	t.Run("caps the failure detail before insertion", func(t *testing.T) {
		longDetail := strings.Repeat("x", schemas.MaxFailureDetailLen+500)

		detailCapped := ArgumentMatcherFunc(func(v interface{}) bool {
			s, ok := v.(string)
			return ok && len(s) == schemas.MaxFailureDetailLen
		})

		mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO step_records`)).
			WithArgs("sess-1", 3, "thought", "noop", "summary",
				detailCapped, "CONTINUE", "Fail", "", "", anyArg, "", anyArg).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := st.AppendStepRecord(ctx, schemas.StepRecord{
			SessionID:      "sess-1",
			StepNumber:     3,
			Thought:        "thought",
			Instruction:    "noop",
			ActionSummary:  "summary",
			FailureDetail:  longDetail,
			DecisionStatus: schemas.DecisionContinue,
			Outcome:        schemas.OutcomeFail,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListStepRecords(t *testing.T) {
	st, mockPool := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	achieved := true

	rows := pgxmock.NewRows([]string{
		"session_id", "step_number", "thought", "instruction", "action_summary",
		"failure_detail", "decision_status", "outcome", "before_path", "after_path",
		"verify_achieved", "verify_reason", "created_at",
	}).
		AddRow("sess-1", 1, "open app", "hotkey command space", "open app",
			"", "CONTINUE", "Pass", "b1.png", "a1.png", &achieved, "spotlight visible", now).
		AddRow("sess-1", 2, "type text", `type "Hello World"`, "type text",
			"", "SUCCESS", "Pass", "b2.png", "a2.png", nil, "", now)

	mockPool.ExpectQuery(flexibleSQLMatcher(`FROM step_records WHERE session_id = $1 ORDER BY step_number ASC`)).
		WithArgs("sess-1").
		WillReturnRows(rows)

	records, err := st.ListStepRecords(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].StepNumber)
	require.NotNil(t, records[0].VerifyAchieved)
	assert.True(t, *records[0].VerifyAchieved)
	assert.Equal(t, schemas.DecisionSuccess, records[1].DecisionStatus)
	assert.Nil(t, records[1].VerifyAchieved)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreatePostMortem(t *testing.T) {
	ctx := context.Background()

	t.Run("reports true on first write", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO post_mortems`)).
			WithArgs("sess-1", "goal", "prompt", "summary", anyArg, "", anyArg).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		created, err := st.CreatePostMortem(ctx, schemas.PostMortem{
			SessionID: "sess-1", OriginalGoal: "goal", OptimizedPrompt: "prompt", Summary: "summary",
		})
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("reports false when one already exists", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO post_mortems`)).
			WithArgs("sess-1", "goal", "prompt", "summary", anyArg, "", anyArg).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		created, err := st.CreatePostMortem(ctx, schemas.PostMortem{
			SessionID: "sess-1", OriginalGoal: "goal", OptimizedPrompt: "prompt", Summary: "summary",
		})
		require.NoError(t, err)
		assert.False(t, created, "conflicting insert must not count as a write")
	})
}

func TestGetPostMortem(t *testing.T) {
	st, mockPool := newTestStore(t)
	ctx := context.Background()

	t.Run("returns nil when none exists", func(t *testing.T) {
		mockPool.ExpectQuery(flexibleSQLMatcher(`FROM post_mortems WHERE session_id = $1`)).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		pm, err := st.GetPostMortem(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, pm)
	})
}

func TestListRuleCandidates(t *testing.T) {
	st, mockPool := newTestStore(t)
	ctx := context.Background()

	rows := pgxmock.NewRows([]string{"thought", "instruction", "outcome", "uses"}).
		AddRow("open the calculator", `hotkey command space; wait 600ms; type "Calculator"; press enter`, "Pass", 4).
		AddRow("type the sum", `type "3+3"; press enter`, "Pass", 2)

	mockPool.ExpectQuery(flexibleSQLMatcher(`GROUP BY thought, instruction, outcome`)).
		WillReturnRows(rows)

	candidates, err := st.ListRuleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, 4, candidates[0].Count)
	assert.Equal(t, schemas.OutcomePass, candidates[1].Outcome)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
