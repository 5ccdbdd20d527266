package engine

import (
	"context"
	"fmt"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/ratelimit"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/specfile"
	"github.com/specdrive/specdrive/internal/vcs"
)

// tickTask runs the next ordered task, or transitions to review once the
// list is exhausted.
func (e *Engine) tickTask(ctx context.Context) (bool, error) {
	st := e.state
	tasks := e.opts.Todo.Tasks

	if st.TaskIndex >= len(tasks) {
		if len(e.opts.Reviewers) == 0 {
			return e.halt(ctx, GateReasonApproved)
		}
		st.Phase = PhaseReview
		st.ReviewRound = 1
		st.RoundStartedAt = e.now()
		if err := e.saveState(ctx, "all tasks reported done; entering review"); err != nil {
			return false, err
		}
		return false, nil
	}

	return e.runTask(ctx, tasks[st.TaskIndex], &st.TaskIndex)
}

// tickRemediation runs the next remediation task, or returns to review
// with a fresh round once the list is exhausted.
func (e *Engine) tickRemediation(ctx context.Context) (bool, error) {
	st := e.state

	if st.ReviewTaskIndex >= len(st.Remediation) {
		st.Phase = PhaseReview
		st.ReviewRound++
		st.RoundStartedAt = e.now()
		reason := fmt.Sprintf("remediation complete; entering review round %d", st.ReviewRound)
		if err := e.saveState(ctx, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	return e.runTask(ctx, st.Remediation[st.ReviewTaskIndex], &st.ReviewTaskIndex)
}

// runTask performs one agent invocation for task and applies the outcome.
// The report is durably written before index advances, so a crash between
// the two re-executes the same task. Task execution is therefore
// at-least-once; the committer's pending-changes check absorbs the
// re-execution.
func (e *Engine) runTask(ctx context.Context, task specfile.Task, index *int) (bool, error) {
	st := e.state
	log := e.logger.WithPhase(string(st.Phase)).WithTask(task.ID)
	log.Info("running task", "index", *index)

	res, err := e.runner.Run(ctx, TaskPrompt(e.opts.Spec, e.opts.Todo, task), agent.CategoryTask)
	if err != nil && ctx.Err() != nil {
		// Driver interruption, not an agent verdict. Persist nothing so
		// the next invocation re-executes the same task.
		return false, err
	}

	var output string
	if res != nil {
		output = res.Output
	}
	if ratelimit.Detected(output) {
		return e.handleRateLimit(ctx, "task "+task.ID)
	}
	if err == nil {
		st.Usage.Add(agent.CategoryTask, res.Usage)
	}

	rep := report.ExtractTaskReport(task.ID, output)
	if err != nil && rep.Error == "" {
		rep.Error = err.Error()
	}
	reason := fmt.Sprintf("task %s reported %s", task.ID, rep.Status)
	if saveErr := e.artifacts.SaveTaskReport(ctx, rep, reason); saveErr != nil {
		return false, saveErr
	}

	switch rep.Status {
	case report.StatusDone:
		if e.committer != nil {
			trailers := vcs.Trailers{SpecID: e.opts.Spec.ID, TaskID: task.ID, RunID: st.RunID}
			if commitErr := e.committer.Commit(ctx, rep, trailers); commitErr != nil {
				// Commit mutated the report to blocked; persist that view
				// before halting.
				if saveErr := e.artifacts.SaveTaskReport(ctx, rep, "commit failed"); saveErr != nil {
					return false, saveErr
				}
				st.Blocked = true
				return e.halt(ctx, fmt.Sprintf("task %s blocked: %s", task.ID, rep.Error))
			}
			if saveErr := e.artifacts.SaveTaskReport(ctx, rep, "commit recorded"); saveErr != nil {
				return false, saveErr
			}
		}
		*index++
		if err := e.saveState(ctx, fmt.Sprintf("task %s done; index advanced", task.ID)); err != nil {
			return false, err
		}
		log.Info("task done", "commit", rep.Commit)
		return false, nil

	case report.StatusBlocked:
		st.Blocked = true
		return e.halt(ctx, fmt.Sprintf("task %s blocked: %s", task.ID, gateDetail(rep)))

	default:
		st.Failed = true
		return e.halt(ctx, fmt.Sprintf("task %s failed: %s", task.ID, gateDetail(rep)))
	}
}

// gateDetail picks the most specific diagnostic a report carries.
func gateDetail(rep *report.TaskReport) string {
	switch {
	case rep.Error != "":
		return rep.Error
	case rep.RootCause != "":
		return rep.RootCause
	default:
		return "agent reported no detail"
	}
}
