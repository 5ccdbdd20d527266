// Package engine implements the task/review orchestration state machine.
// An external driver ticks the engine; each tick performs at most one unit
// of state-changing work (one task invocation, or one review round fan-out)
// and persists the resulting state before returning. All terminal
// conditions funnel through a single human-gate artifact.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/logging"
	"github.com/specdrive/specdrive/internal/ratelimit"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/specfile"
	"github.com/specdrive/specdrive/internal/store"
	"github.com/specdrive/specdrive/internal/vcs"
)

// Human-gate reasons for the review gate's terminal outcomes.
const (
	GateReasonApproved         = "human review required before next run"
	GateReasonRetriesExhausted = "reviewers requested changes; max retries reached"
	GateReasonReviewTimeout    = "review timeout exceeded"
	GateReasonEmptyRemediation = "changes requested but no remediation items generated"
)

// Options is the static configuration of one run.
type Options struct {
	Spec      *specfile.Spec
	Todo      *specfile.Todo
	Reviewers []config.Reviewer

	// ReviewMaxRetries is the hard ceiling on remediation rounds. The
	// round count never exceeds ReviewMaxRetries+1.
	ReviewMaxRetries int

	// ReviewTimeout bounds one review round by wall clock, measured from
	// round start.
	ReviewTimeout time.Duration

	// ExpectedFingerprint, when non-empty, must match ActualFingerprint
	// or the run halts before doing any work.
	ExpectedFingerprint string
	ActualFingerprint   string

	// RunID identifies the run; generated when empty.
	RunID string
}

// Engine drives a run through its phases. It is the single writer of the
// workflow state and must not be ticked concurrently.
type Engine struct {
	opts      Options
	store     store.Store
	artifacts *report.Artifacts
	runner    agent.Runner
	committer *vcs.Committer
	logger    *logging.Logger
	now       func() time.Time

	state *WorkflowState
}

// New creates an Engine, resuming from persisted state when present.
// artifacts may be nil to share the state store; committer may be nil to
// disable version-control handling.
func New(ctx context.Context, opts Options, s store.Store, artifacts *report.Artifacts, runner agent.Runner, committer *vcs.Committer, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if artifacts == nil {
		artifacts = report.NewArtifacts(s)
	}

	st, found, err := loadState(ctx, s)
	if err != nil {
		return nil, err
	}
	if !found {
		runID := opts.RunID
		if runID == "" {
			runID = uuid.NewString()
		}
		st = newWorkflowState(runID)
		if err := saveState(ctx, s, st, "run initialized"); err != nil {
			return nil, err
		}
	}

	return &Engine{
		opts:      opts,
		store:     s,
		artifacts: artifacts,
		runner:    runner,
		committer: committer,
		logger:    logger.WithRun(st.RunID),
		now:       time.Now,
		state:     st,
	}, nil
}

// State returns a copy of the current workflow state.
func (e *Engine) State() WorkflowState { return *e.state }

// Done reports whether the run has reached its terminal phase.
func (e *Engine) Done() bool { return e.state.Phase == PhaseDone }

// Tick performs one unit of work and persists the transition. It returns
// true once the run is done and must not be called again concurrently.
func (e *Engine) Tick(ctx context.Context) (bool, error) {
	if err := e.clearElapsedRateLimit(ctx); err != nil {
		return false, err
	}

	if e.opts.ExpectedFingerprint != "" && e.opts.ActualFingerprint != e.opts.ExpectedFingerprint {
		e.state.Blocked = true
		return e.halt(ctx, fmt.Sprintf("%s: expected %s, got %s",
			errors.ErrFingerprintMismatch, e.opts.ExpectedFingerprint, e.opts.ActualFingerprint))
	}

	switch e.state.Phase {
	case PhaseDone:
		return true, nil
	case PhaseTasks:
		return e.tickTask(ctx)
	case PhaseReview:
		return e.tickReview(ctx)
	case PhaseReviewTasks:
		return e.tickRemediation(ctx)
	default:
		return false, fmt.Errorf("unknown phase %q", e.state.Phase)
	}
}

// halt writes the human gate and moves to the done phase. The gate is
// write-once, so the first reason always stands. Blocked/Failed flags are
// the caller's responsibility.
func (e *Engine) halt(ctx context.Context, reason string) (bool, error) {
	if err := e.artifacts.SaveHumanGate(ctx, report.NewHumanGate(reason), reason); err != nil {
		return false, err
	}
	e.state.Phase = PhaseDone
	if err := e.saveState(ctx, "halted: "+reason); err != nil {
		return false, err
	}
	e.logger.Info("run halted", "reason", reason)
	return true, nil
}

// handleRateLimit applies the backoff ladder after a detected rate-limit
// signature in agent output. The attempt counter increments even at the
// terminal rung.
func (e *Engine) handleRateLimit(ctx context.Context, unit string) (bool, error) {
	st := e.state
	attempt := st.RateLimitAttempts
	delay := ratelimit.Backoff(attempt)
	st.RateLimitAttempts++
	st.Blocked = true

	var reason string
	if delay > 0 {
		st.RateLimitUntil = e.now().Add(delay)
		reason = fmt.Sprintf("rate limited during %s; backing off %s until %s",
			unit, delay, st.RateLimitUntil.Format(time.RFC3339))
	} else {
		reason = fmt.Sprintf("rate limited during %s; no automatic retry after %d attempts", unit, attempt)
	}
	e.logger.Warn("rate limit detected", "unit", unit, "attempt", attempt, "backoff", delay.String())
	return e.halt(ctx, reason)
}

// clearElapsedRateLimit drops the stored resume timestamp once wall-clock
// time has passed it, so a later run can proceed without manual cleanup.
// It never resumes the paused phase by itself.
func (e *Engine) clearElapsedRateLimit(ctx context.Context) error {
	st := e.state
	if st.RateLimitUntil.IsZero() || e.now().Before(st.RateLimitUntil) {
		return nil
	}
	st.RateLimitUntil = time.Time{}
	return e.saveState(ctx, "rate limit window elapsed; cleared resume timestamp")
}

func (e *Engine) saveState(ctx context.Context, reason string) error {
	return saveState(ctx, e.store, e.state, reason)
}
