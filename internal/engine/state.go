package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/specfile"
	"github.com/specdrive/specdrive/internal/store"
)

// Phase is the coarse stage of a run.
type Phase string

const (
	PhaseTasks       Phase = "tasks"
	PhaseReview      Phase = "review"
	PhaseReviewTasks Phase = "review-tasks"
	PhaseDone        Phase = "done"
)

// StateKey is the store key for the persisted workflow state.
const StateKey = "state/workflow.json"

// Counters holds monotonically increasing token totals.
type Counters struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

func (c *Counters) add(u agent.Usage) {
	c.InputTokens += u.InputTokens
	c.OutputTokens += u.OutputTokens
}

// Total returns the sum of input and output tokens.
func (c Counters) Total() int64 { return c.InputTokens + c.OutputTokens }

// UsageLedger accumulates token counts overall and per invocation category.
// Counters only grow and are never reset mid-run.
type UsageLedger struct {
	Overall Counters `json:"overall"`
	Task    Counters `json:"task"`
	Review  Counters `json:"review"`
}

// Add records one invocation's usage under its category.
func (l *UsageLedger) Add(category agent.Category, u agent.Usage) {
	l.Overall.add(u)
	switch category {
	case agent.CategoryTask:
		l.Task.add(u)
	case agent.CategoryReview:
		l.Review.add(u)
	}
}

// WorkflowState holds the control variables of a run. It is mutated only
// by the engine and persisted after every transition; it is the single
// entity that must be consistent across a crash and restart.
type WorkflowState struct {
	V     int    `json:"v"`
	RunID string `json:"runId"`
	Phase Phase  `json:"phase"`

	// TaskIndex is the next ordered task to execute. It only advances
	// after the task's report is durably written.
	TaskIndex int `json:"taskIndex"`

	// ReviewRound numbers review rounds from 1. Artifacts are keyed by
	// round, so a new round never clobbers a prior round's results.
	ReviewRound     int       `json:"reviewRound"`
	ReviewTaskIndex int       `json:"reviewTaskIndex"`
	ReviewRetries   int       `json:"reviewRetries"`
	RoundStartedAt  time.Time `json:"roundStartedAt"`

	// Remediation is the task list generated from the last rejected
	// round, persisted so a restart resumes the same list.
	Remediation []specfile.Task `json:"remediation"`

	RateLimitAttempts int       `json:"rateLimitAttempts"`
	RateLimitUntil    time.Time `json:"rateLimitUntil"`

	Blocked bool `json:"blocked"`
	Failed  bool `json:"failed"`

	Usage UsageLedger `json:"usage"`
}

// newWorkflowState initializes state for a fresh run.
func newWorkflowState(runID string) *WorkflowState {
	return &WorkflowState{
		V:     stateSchemaVersion,
		RunID: runID,
		Phase: PhaseTasks,
	}
}

const stateSchemaVersion = 1

// loadState reads the persisted workflow state. The second return is
// false when no state exists yet.
func loadState(ctx context.Context, s store.Store) (*WorkflowState, bool, error) {
	data, err := s.Load(ctx, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var st WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("corrupt workflow state: %w", err)
	}
	return &st, true, nil
}

// saveState persists the current state with a human-readable reason.
func saveState(ctx context.Context, s store.Store, st *WorkflowState, reason string) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	return s.Save(ctx, StateKey, data, reason)
}
