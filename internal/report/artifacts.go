package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/store"
)

// Artifacts persists run artifacts through a Store. One record per task
// id; one record per reviewer id per round; one write-once human gate.
type Artifacts struct {
	store store.Store
}

// NewArtifacts creates an Artifacts layer over the given store.
func NewArtifacts(s store.Store) *Artifacts {
	return &Artifacts{store: s}
}

// TaskReportKey returns the store key for a task's report.
func TaskReportKey(taskID string) string {
	return fmt.Sprintf("reports/%s.json", taskID)
}

// ReviewResultKey returns the store key for one reviewer's result in one
// round. Keying by round means a new round never overwrites a prior
// round's artifact.
func ReviewResultKey(round int, reviewerID string) string {
	return fmt.Sprintf("reviews/round-%d/%s.json", round, reviewerID)
}

// ReviewSummaryKey returns the store key for a round's summary.
func ReviewSummaryKey(round int) string {
	return fmt.Sprintf("reviews/round-%d/summary.json", round)
}

// HumanGateKey is the store key for the terminal human-gate artifact.
const HumanGateKey = "human-gate.json"

// SaveTaskReport persists a task report, overwriting any prior attempt.
func (a *Artifacts) SaveTaskReport(ctx context.Context, r *TaskReport, reason string) error {
	r.normalize()
	return a.save(ctx, TaskReportKey(r.TaskID), r, reason)
}

// LoadTaskReport loads the report for taskID, or store.ErrNotFound.
func (a *Artifacts) LoadTaskReport(ctx context.Context, taskID string) (*TaskReport, error) {
	var r TaskReport
	if err := a.load(ctx, TaskReportKey(taskID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReviewResult persists one reviewer's result for the given round.
func (a *Artifacts) SaveReviewResult(ctx context.Context, round int, r *ReviewResult, reason string) error {
	r.normalize()
	return a.save(ctx, ReviewResultKey(round, r.Reviewer), r, reason)
}

// LoadReviewResult loads one reviewer's result for the given round.
func (a *Artifacts) LoadReviewResult(ctx context.Context, round int, reviewerID string) (*ReviewResult, error) {
	var r ReviewResult
	if err := a.load(ctx, ReviewResultKey(round, reviewerID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReviewResultExists reports whether one reviewer already has an artifact
// for the round.
func (a *Artifacts) ReviewResultExists(ctx context.Context, round int, reviewerID string) (bool, error) {
	return a.store.Exists(ctx, ReviewResultKey(round, reviewerID))
}

// ReviewRoundComplete reports whether every reviewer in ids has an
// artifact for the round. Aggregation must not run before then.
func (a *Artifacts) ReviewRoundComplete(ctx context.Context, round int, ids []string) (bool, error) {
	for _, id := range ids {
		exists, err := a.store.Exists(ctx, ReviewResultKey(round, id))
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// SaveReviewSummary persists the derived summary for a round.
func (a *Artifacts) SaveReviewSummary(ctx context.Context, round int, s *ReviewSummary, reason string) error {
	return a.save(ctx, ReviewSummaryKey(round), s, reason)
}

// SaveHumanGate writes the terminal human-gate artifact exactly once per
// run. A second write attempt is a no-op: the first reason stands.
func (a *Artifacts) SaveHumanGate(ctx context.Context, gate *HumanGate, reason string) error {
	data, err := json.MarshalIndent(gate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal human gate: %w", err)
	}
	err = a.store.SaveIfNotExists(ctx, HumanGateKey, data, reason)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

// LoadHumanGate loads the human-gate artifact, or store.ErrNotFound.
func (a *Artifacts) LoadHumanGate(ctx context.Context) (*HumanGate, error) {
	var gate HumanGate
	if err := a.load(ctx, HumanGateKey, &gate); err != nil {
		return nil, err
	}
	return &gate, nil
}

func (a *Artifacts) save(ctx context.Context, key string, v any, reason string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", key, err)
	}
	return a.store.Save(ctx, key, data, reason)
}

func (a *Artifacts) load(ctx context.Context, key string, v any) error {
	data, err := a.store.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt artifact %s: %w", key, err)
	}
	return nil
}
