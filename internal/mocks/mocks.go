// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for engine calls. It is designed to
// respect context even when m.Called() blocks (e.g. a blocking Run func used
// by a timeout test).
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	type result struct {
		s   string
		err error
	}
	doneChan := make(chan result, 1)

	go func() {
		// Called() resolves the method name from the caller frame, which
		// inside a closure is the closure itself; name it explicitly.
		args := m.MethodCalled("Generate", ctx, req)
		doneChan <- result{args.String(0), args.Error(1)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-doneChan:
		return res.s, res.err
	}
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Store Mock --

// MockStore mocks the schemas.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateSession(ctx context.Context, s schemas.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStore) UpdateSessionStatus(ctx context.Context, sessionID string, status schemas.SessionStatus) error {
	args := m.Called(ctx, sessionID, status)
	return args.Error(0)
}

func (m *MockStore) UpdateSessionPlan(ctx context.Context, s schemas.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStore) GetSession(ctx context.Context, sessionID string) (schemas.Session, error) {
	args := m.Called(ctx, sessionID)
	var r0 schemas.Session
	if args.Get(0) != nil {
		r0 = args.Get(0).(schemas.Session)
	}
	return r0, args.Error(1)
}

func (m *MockStore) ListSessions(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	args := m.Called(ctx, limit)
	var r0 []schemas.SessionSummary
	if args.Get(0) != nil {
		r0 = args.Get(0).([]schemas.SessionSummary)
	}
	return r0, args.Error(1)
}

func (m *MockStore) AppendStepRecord(ctx context.Context, rec schemas.StepRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) ListStepRecords(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	args := m.Called(ctx, sessionID)
	var r0 []schemas.StepRecord
	if args.Get(0) != nil {
		r0 = args.Get(0).([]schemas.StepRecord)
	}
	return r0, args.Error(1)
}

func (m *MockStore) ListFailureRecords(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	args := m.Called(ctx, sessionID)
	var r0 []schemas.StepRecord
	if args.Get(0) != nil {
		r0 = args.Get(0).([]schemas.StepRecord)
	}
	return r0, args.Error(1)
}

func (m *MockStore) CreatePostMortem(ctx context.Context, pm schemas.PostMortem) (bool, error) {
	args := m.Called(ctx, pm)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) GetPostMortem(ctx context.Context, sessionID string) (*schemas.PostMortem, error) {
	args := m.Called(ctx, sessionID)
	var r0 *schemas.PostMortem
	if args.Get(0) != nil {
		r0 = args.Get(0).(*schemas.PostMortem)
	}
	return r0, args.Error(1)
}

func (m *MockStore) ListRuleCandidates(ctx context.Context) ([]schemas.RuleCandidate, error) {
	args := m.Called(ctx)
	var r0 []schemas.RuleCandidate
	if args.Get(0) != nil {
		r0 = args.Get(0).([]schemas.RuleCandidate)
	}
	return r0, args.Error(1)
}

// -- Loop Collaborator Mocks --

// MockReasoningClient mocks the schemas.ReasoningClient interface.
type MockReasoningClient struct {
	mock.Mock
}

func (m *MockReasoningClient) Decide(ctx context.Context, goal string, history []schemas.StepRecord, isFirstStep bool, envContext, snapshotPath string) *schemas.Decision {
	args := m.Called(ctx, goal, history, isFirstStep, envContext, snapshotPath)
	var r0 *schemas.Decision
	if args.Get(0) != nil {
		r0 = args.Get(0).(*schemas.Decision)
	}
	return r0
}

func (m *MockReasoningClient) TranslateStep(ctx context.Context, description, envContext string) string {
	args := m.Called(ctx, description, envContext)
	return args.String(0)
}

// MockVerifier mocks the schemas.Verifier interface.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyStep(ctx context.Context, intendedThought, afterSnapshotPath, envContext string) *schemas.VerificationResult {
	args := m.Called(ctx, intendedThought, afterSnapshotPath, envContext)
	var r0 *schemas.VerificationResult
	if args.Get(0) != nil {
		r0 = args.Get(0).(*schemas.VerificationResult)
	}
	return r0
}

func (m *MockVerifier) VerifyGoal(ctx context.Context, goal, finalSnapshotPath, envContext string) *schemas.VerificationResult {
	args := m.Called(ctx, goal, finalSnapshotPath, envContext)
	var r0 *schemas.VerificationResult
	if args.Get(0) != nil {
		r0 = args.Get(0).(*schemas.VerificationResult)
	}
	return r0
}

// MockCapturer mocks the schemas.Capturer interface.
type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// MockExecutor mocks the schemas.Executor interface.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, script string) error {
	args := m.Called(ctx, script)
	return args.Error(0)
}

// MockTranslator mocks the schemas.Translator interface.
type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(description, envContext string) string {
	args := m.Called(description, envContext)
	return args.String(0)
}
