package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// MemoryStore is the in-process implementation of schemas.Store, used when no
// database is configured (data is lost on exit) and by package tests.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]schemas.Session
	steps       map[string][]schemas.StepRecord
	postMortems map[string]schemas.PostMortem
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]schemas.Session),
		steps:       make(map[string][]schemas.StepRecord),
		postMortems: make(map[string]schemas.PostMortem),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s schemas.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateSessionStatus(_ context.Context, sessionID string, status schemas.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.Status = status
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) UpdateSessionPlan(_ context.Context, s schemas.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %s not found", s.ID)
	}
	cur.MaxSteps = s.MaxSteps
	cur.PlannedSteps = s.PlannedSteps
	cur.Checkpoints = append([]int(nil), s.Checkpoints...)
	cur.StepNumber = s.StepNumber
	m.sessions[s.ID] = cur
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (schemas.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return schemas.Session{}, fmt.Errorf("session %s not found", sessionID)
	}
	return s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]schemas.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schemas.SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, schemas.SessionSummary{ID: s.ID, Goal: s.Goal, Status: s.Status, CreatedAt: s.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendStepRecord(_ context.Context, rec schemas.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[rec.SessionID]; !ok {
		return fmt.Errorf("session %s not found", rec.SessionID)
	}
	rec.FailureDetail = schemas.ClampFailureDetail(rec.FailureDetail)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.steps[rec.SessionID] = append(m.steps[rec.SessionID], rec)
	return nil
}

func (m *MemoryStore) ListStepRecords(_ context.Context, sessionID string) ([]schemas.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := append([]schemas.StepRecord(nil), m.steps[sessionID]...)
	sort.Slice(records, func(i, j int) bool { return records[i].StepNumber < records[j].StepNumber })
	return records, nil
}

func (m *MemoryStore) ListFailureRecords(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	records, err := m.ListStepRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []schemas.StepRecord
	for _, rec := range records {
		if rec.Outcome == schemas.OutcomeFail || strings.Contains(rec.FailureDetail, "Error") {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePostMortem(_ context.Context, pm schemas.PostMortem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.postMortems[pm.SessionID]; exists {
		return false, nil
	}
	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now()
	}
	m.postMortems[pm.SessionID] = pm
	return true, nil
}

func (m *MemoryStore) GetPostMortem(_ context.Context, sessionID string) (*schemas.PostMortem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pm, ok := m.postMortems[sessionID]
	if !ok {
		return nil, nil
	}
	return &pm, nil
}

func (m *MemoryStore) ListRuleCandidates(_ context.Context) ([]schemas.RuleCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		thought, instruction string
		outcome              schemas.StepOutcome
	}
	counts := make(map[key]int)
	for _, records := range m.steps {
		for _, rec := range records {
			if rec.Instruction == "" || strings.EqualFold(rec.Instruction, "noop") {
				continue
			}
			counts[key{rec.Thought, rec.Instruction, rec.Outcome}]++
		}
	}

	out := make([]schemas.RuleCandidate, 0, len(counts))
	for k, n := range counts {
		out = append(out, schemas.RuleCandidate{Thought: k.thought, Instruction: k.instruction, Outcome: k.outcome, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Thought < out[j].Thought
	})
	return out, nil
}
