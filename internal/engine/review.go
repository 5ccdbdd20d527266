package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/logging"
	"github.com/specdrive/specdrive/internal/ratelimit"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/specfile"
)

// tickReview runs one review round: fan out the reviewers that still lack
// an artifact for the round, then aggregate once the set is complete. The
// round is bounded by wall clock from its start; a reviewer that never
// reports converts into a timeout gate rather than blocking forever.
func (e *Engine) tickReview(ctx context.Context) (bool, error) {
	st := e.state
	round := st.ReviewRound
	log := e.logger.WithPhase(string(PhaseReview)).With("round", round)

	complete, err := e.artifacts.ReviewRoundComplete(ctx, round, e.reviewerIDs())
	if err != nil {
		return false, err
	}

	if !complete {
		if done, err := e.dispatchReviewers(ctx, round, log); done || err != nil {
			return done, err
		}
		complete, err = e.artifacts.ReviewRoundComplete(ctx, round, e.reviewerIDs())
		if err != nil {
			return false, err
		}
		if !complete {
			if err := ctx.Err(); err != nil {
				// Interrupted, not timed out: the round stays open and
				// resumes with only the missing reviewers re-dispatched.
				return false, err
			}
			st.Blocked = true
			return e.halt(ctx, GateReasonReviewTimeout)
		}
	}

	return e.aggregateRound(ctx, round, log)
}

// dispatchReviewers issues one concurrent invocation per reviewer still
// missing an artifact for the round. Each result is written independently
// and durably; partial results survive a crash and are not re-requested.
// The bool return is true when the dispatch itself halted the run.
func (e *Engine) dispatchReviewers(ctx context.Context, round int, log *logging.Logger) (bool, error) {
	st := e.state

	var pending []config.Reviewer
	for _, rv := range e.opts.Reviewers {
		exists, err := e.artifacts.ReviewResultExists(ctx, round, rv.ID)
		if err != nil {
			return false, err
		}
		if !exists {
			pending = append(pending, rv)
		}
	}
	if len(pending) == 0 {
		return false, nil
	}
	log.Info("dispatching reviewers", "pending", len(pending))

	deadline := st.RoundStartedAt.Add(e.opts.ReviewTimeout)
	rctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	type outcome struct {
		reviewer config.Reviewer
		output   string
		usage    agent.Usage
		counted  bool
	}
	outcomes := make([]outcome, len(pending))

	g := new(errgroup.Group)
	for i, rv := range pending {
		g.Go(func() error {
			o := &outcomes[i]
			o.reviewer = rv

			res, err := e.runner.Run(rctx, ReviewPrompt(e.opts.Spec, rv, round), agent.CategoryReview)
			if res != nil {
				o.output = res.Output
				if err == nil {
					o.usage = res.Usage
					o.counted = true
				}
			}
			if err != nil && rctx.Err() != nil {
				// Round deadline or driver interruption: leave the
				// artifact missing rather than record a verdict the
				// reviewer never gave. The caller decides between the
				// timeout gate and surfacing the cancellation.
				return nil
			}

			rr := report.ExtractReviewResult(rv.ID, o.output)
			reason := fmt.Sprintf("reviewer %s round %d reported %s", rv.ID, round, rr.Status)
			return e.artifacts.SaveReviewResult(ctx, round, rr, reason)
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	// Fan-in: usage and rate-limit handling touch shared state, so they
	// run on the single writer after all goroutines return.
	counted := false
	for _, o := range outcomes {
		if o.counted {
			st.Usage.Add(agent.CategoryReview, o.usage)
			counted = true
		}
	}
	if counted {
		if err := e.saveState(ctx, fmt.Sprintf("review round %d dispatched", round)); err != nil {
			return false, err
		}
	}
	for _, o := range outcomes {
		if ratelimit.Detected(o.output) {
			done, err := e.handleRateLimit(ctx, "review by "+o.reviewer.ID)
			return done, err
		}
	}
	return false, nil
}

// aggregateRound reads the full artifact set, derives the summary, and
// applies the approve/reject decision.
func (e *Engine) aggregateRound(ctx context.Context, round int, log *logging.Logger) (bool, error) {
	st := e.state

	results := make([]*report.ReviewResult, 0, len(e.opts.Reviewers))
	for _, rv := range e.opts.Reviewers {
		rr, err := e.artifacts.LoadReviewResult(ctx, round, rv.ID)
		if err != nil {
			return false, err
		}
		results = append(results, rr)
	}

	summary := report.Summarize(results)
	reason := fmt.Sprintf("review round %d summarized as %s", round, summary.Status)
	if err := e.artifacts.SaveReviewSummary(ctx, round, summary, reason); err != nil {
		return false, err
	}
	log.Info("review round complete", "status", string(summary.Status), "issues", len(summary.Issues))

	if summary.Status == report.ReviewApproved {
		return e.halt(ctx, GateReasonApproved)
	}

	if st.ReviewRetries >= e.opts.ReviewMaxRetries {
		st.Blocked = true
		return e.halt(ctx, GateReasonRetriesExhausted)
	}

	remediation := RemediationTasks(round, results)
	if len(remediation) == 0 {
		// Looping with no new work is forbidden.
		st.Blocked = true
		return e.halt(ctx, GateReasonEmptyRemediation)
	}

	st.Remediation = remediation
	st.ReviewRetries++
	st.Phase = PhaseReviewTasks
	st.ReviewTaskIndex = 0
	reason = fmt.Sprintf("round %d rejected; %d remediation tasks generated", round, len(remediation))
	return false, e.saveState(ctx, reason)
}

// RemediationTasks derives the ordered remediation list from a rejected
// round: one task per (reviewer, issue-or-next-action) pair, in reviewer
// order then item order within each reviewer.
func RemediationTasks(round int, results []*report.ReviewResult) []specfile.Task {
	var tasks []specfile.Task
	for _, r := range results {
		if r.Status == report.ReviewApproved {
			continue
		}
		n := 0
		for _, item := range append(append([]string{}, r.Issues...), r.Next...) {
			n++
			tasks = append(tasks, specfile.Task{
				ID:     fmt.Sprintf("R%d-%s-%d", round, r.Reviewer, n),
				Do:     item,
				Verify: fmt.Sprintf("confirm the concern raised by reviewer %s no longer applies", r.Reviewer),
			})
		}
	}
	return tasks
}

func (e *Engine) reviewerIDs() []string {
	ids := make([]string, len(e.opts.Reviewers))
	for i, rv := range e.opts.Reviewers {
		ids[i] = rv.ID
	}
	return ids
}
