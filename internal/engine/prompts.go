package engine

import (
	"fmt"
	"strings"

	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/specfile"
)

// TaskReportJSONSchema describes the structured payload a task agent must
// emit somewhere in its output, inside a fenced json block.
const TaskReportJSONSchema = `{
  "taskId": "<the task id you were given>",
  "status": "done | blocked | failed",
  "work": ["what you did, one item per line"],
  "files": ["paths you touched"],
  "tests": ["tests you ran or added"],
  "issues": ["problems you hit"],
  "next": ["follow-ups you could not do"],
  "rootCause": "for blocked/failed: what is wrong",
  "reasoning": "short summary of your approach",
  "fix": "one-line description of the change",
  "error": "for blocked/failed: the error text",
  "commit": "optional commit message; leave empty to have one composed"
}`

// ReviewResultJSONSchema describes the payload a reviewer must emit.
const ReviewResultJSONSchema = `{
  "reviewer": "<your reviewer id>",
  "status": "approved | changes_requested",
  "issues": ["concrete problems found, one per line"],
  "next": ["concrete follow-up actions, one per line"]
}`

// TaskPrompt builds the prompt for one work item: the spec context, the
// task's do/verify instructions, and the report schema request.
func TaskPrompt(spec *specfile.Spec, todo *specfile.Todo, task specfile.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are implementing spec %s: %s\n\n", spec.ID, spec.Title)
	writeList(&b, "Goals", spec.Goals)
	writeList(&b, "Non-goals (do not work on these)", spec.NonGoals)
	writeList(&b, "API requirements", spec.Req.API)
	writeList(&b, "Behavior requirements", spec.Req.Behavior)
	writeList(&b, "Observability requirements", spec.Req.Obs)
	writeList(&b, "Acceptance criteria", spec.Accept)
	if todo.TDD {
		b.WriteString("Work test-first: write the failing test before the implementation.\n\n")
	}
	writeList(&b, "Definition of done", todo.DoD)

	fmt.Fprintf(&b, "Your task is %s.\n\nDo:\n%s\n\nVerify:\n%s\n\n", task.ID, task.Do, task.Verify)

	b.WriteString("Work on exactly this task, nothing else. When finished, ")
	b.WriteString("report the outcome as a single JSON object in a fenced ```json block ")
	b.WriteString("matching this schema:\n\n```json\n")
	b.WriteString(TaskReportJSONSchema)
	b.WriteString("\n```\n")
	return b.String()
}

// ReviewPrompt builds the prompt for one reviewer in one round.
func ReviewPrompt(spec *specfile.Spec, reviewer config.Reviewer, round int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, reviewing the implementation of spec %s: %s (round %d).\n\n",
		reviewer.Title, spec.ID, spec.Title, round)
	if reviewer.Focus != "" {
		fmt.Fprintf(&b, "Your review focus:\n%s\n\n", reviewer.Focus)
	}
	writeList(&b, "Acceptance criteria", spec.Accept)
	writeList(&b, "Behavior requirements", spec.Req.Behavior)

	b.WriteString("Inspect the working tree and the tests. Approve only if the ")
	b.WriteString("acceptance criteria within your focus are met. Report your verdict ")
	b.WriteString("as a single JSON object in a fenced ```json block matching this schema:\n\n```json\n")
	b.WriteString(ReviewResultJSONSchema)
	b.WriteString("\n```\n")
	fmt.Fprintf(&b, "\nUse %q as the reviewer id.\n", reviewer.ID)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
