// Package report defines the structured artifacts produced during a run
// (task reports, review results, the human gate) and the codec that
// extracts them from free-form agent output.
package report

// SchemaVersion is stamped into every artifact as "v".
const SchemaVersion = 1

// Status is the declared outcome of a task attempt.
type Status string

const (
	StatusDone    Status = "done"
	StatusBlocked Status = "blocked"
	StatusFailed  Status = "failed"
)

// ReviewStatus is a reviewer's verdict for one round.
type ReviewStatus string

const (
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
)

// TaskReport is produced once per task attempt and overwritten on retry.
type TaskReport struct {
	V         int      `json:"v"`
	TaskID    string   `json:"taskId"`
	Status    Status   `json:"status"`
	Work      []string `json:"work"`
	Files     []string `json:"files"`
	Tests     []string `json:"tests"`
	Issues    []string `json:"issues"`
	Next      []string `json:"next"`
	RootCause string   `json:"rootCause"`
	Reasoning string   `json:"reasoning"`
	Fix       string   `json:"fix"`
	Error     string   `json:"error"`
	Commit    string   `json:"commit"`
}

// ReviewResult is one reviewer's verdict for one round. Historical rounds
// are superseded by round number, never deleted.
type ReviewResult struct {
	V        int          `json:"v"`
	Reviewer string       `json:"reviewer"`
	Status   ReviewStatus `json:"status"`
	Issues   []string     `json:"issues"`
	Next     []string     `json:"next"`
}

// ReviewSummary combines all ReviewResults of the current round. It is
// derived, not independently stored state.
type ReviewSummary struct {
	V      int          `json:"v"`
	Status ReviewStatus `json:"status"`
	Issues []string     `json:"issues"`
	Next   []string     `json:"next"`
}

// HumanGate is the terminal artifact written at most once per run when the
// workflow requires human judgement to proceed.
type HumanGate struct {
	V      int    `json:"v"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// NewHumanGate builds a HumanGate with the given reason.
func NewHumanGate(reason string) *HumanGate {
	return &HumanGate{V: SchemaVersion, Status: "blocked", Reason: reason}
}

// Summarize combines review results in reviewer order. The summary is
// approved iff every reviewer approved.
func Summarize(results []*ReviewResult) *ReviewSummary {
	summary := &ReviewSummary{
		V:      SchemaVersion,
		Status: ReviewApproved,
		Issues: []string{},
		Next:   []string{},
	}
	for _, r := range results {
		if r.Status != ReviewApproved {
			summary.Status = ReviewChangesRequested
		}
		summary.Issues = append(summary.Issues, r.Issues...)
		summary.Next = append(summary.Next, r.Next...)
	}
	return summary
}

// normalize fills nil slices so artifacts always serialize lists, not null.
func (r *TaskReport) normalize() {
	r.V = SchemaVersion
	if r.Work == nil {
		r.Work = []string{}
	}
	if r.Files == nil {
		r.Files = []string{}
	}
	if r.Tests == nil {
		r.Tests = []string{}
	}
	if r.Issues == nil {
		r.Issues = []string{}
	}
	if r.Next == nil {
		r.Next = []string{}
	}
}

func (r *ReviewResult) normalize() {
	r.V = SchemaVersion
	if r.Issues == nil {
		r.Issues = []string{}
	}
	if r.Next == nil {
		r.Next = []string{}
	}
}
