package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/specdrive/specdrive/internal/logging"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/util"
)

// subjectLimit caps composed commit subjects.
const subjectLimit = 72

// NoOpCommit marks a task that legitimately required no file changes.
const NoOpCommit = "no-op"

// Trailers carries the metadata appended to composed commit messages.
type Trailers struct {
	SpecID string
	TaskID string
	RunID  string
}

// Committer turns a completed task report into a commit and push. Push
// failures (other than the missing-remote-branch case) never block task
// advancement; only a failed description is fatal.
type Committer struct {
	client Client
	branch string
	logger *logging.Logger
}

// NewCommitter creates a Committer pushing to branch. An empty branch
// disables pushing; commits are still described.
func NewCommitter(client Client, branch string, logger *logging.Logger) *Committer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Committer{client: client, branch: branch, logger: logger}
}

// Commit processes a TaskReport with status done. It mutates rep in
// place: the commit field, the work list on a no-op, and the status/error
// fields on a fatal description failure. The returned error is non-nil
// only for the fatal case.
func (c *Committer) Commit(ctx context.Context, rep *report.TaskReport, trailers Trailers) error {
	pending, err := c.client.HasPendingChanges(ctx)
	if err != nil {
		rep.Status = report.StatusBlocked
		rep.Error = err.Error()
		return err
	}

	if !pending {
		// The idempotence check: a re-executed task with nothing left
		// to change is a success, not a failure.
		rep.Commit = NoOpCommit
		rep.Work = append(rep.Work, "no working changes; nothing to commit")
		c.logger.Info("no pending changes, skipping commit", "task_id", rep.TaskID)
		return nil
	}

	message := rep.Commit
	if message == "" || message == NoOpCommit {
		message = ComposeMessage(rep, trailers)
	}
	rep.Commit = message

	if err := c.client.SetDescription(ctx, message); err != nil {
		rep.Status = report.StatusBlocked
		rep.Error = err.Error()
		return err
	}

	if c.branch == "" {
		return nil
	}

	if err := c.push(ctx); err != nil {
		// Push failures are recoverable out-of-band and must not
		// stall the pipeline.
		c.logger.Warn("push failed, continuing", "task_id", rep.TaskID, "branch", c.branch, "error", err.Error())
	}
	return nil
}

// push attempts the push, recovering once from a missing remote branch.
func (c *Committer) push(ctx context.Context) error {
	err := c.client.Push(ctx, c.branch)
	if err == nil {
		return nil
	}
	if err != ErrNoRemoteBranch {
		return err
	}

	c.logger.Info("branch not on remote yet, tracking", "branch", c.branch)
	if err := c.client.TrackRemote(ctx, c.branch); err != nil {
		return err
	}
	return c.client.Push(ctx, c.branch)
}

// ComposeMessage builds a commit message from the report's structured
// fields when the agent did not supply one.
func ComposeMessage(rep *report.TaskReport, trailers Trailers) string {
	var b strings.Builder

	subject := fmt.Sprintf("%s: task complete", rep.TaskID)
	switch {
	case rep.Fix != "":
		subject = fmt.Sprintf("%s: %s", rep.TaskID, rep.Fix)
	case rep.Reasoning != "":
		subject = fmt.Sprintf("%s: %s", rep.TaskID, rep.Reasoning)
	case rep.RootCause != "":
		subject = fmt.Sprintf("%s: %s", rep.TaskID, rep.RootCause)
	}
	b.WriteString(util.Subject(subject, subjectLimit))
	b.WriteString("\n")

	if len(rep.Work) > 0 {
		b.WriteString("\n")
		for _, item := range rep.Work {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if trailers.SpecID != "" {
		fmt.Fprintf(&b, "Spec-Id: %s\n", trailers.SpecID)
	}
	fmt.Fprintf(&b, "Task-Id: %s\n", rep.TaskID)
	if trailers.RunID != "" {
		fmt.Fprintf(&b, "Run-Id: %s\n", trailers.RunID)
	}
	return b.String()
}
