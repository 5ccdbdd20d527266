package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/logging"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/specfile"
	"github.com/specdrive/specdrive/internal/store"
)

// fakeRunner routes prompts to scripted responses and records every
// prompt it sees.
type fakeRunner struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string, category agent.Category) (*agent.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, prompt string, category agent.Category) (*agent.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.respond(prompt, category)
}

func (f *fakeRunner) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func doneOutput(taskID string) string {
	return fmt.Sprintf("working...\n```json\n{\"taskId\":%q,\"status\":\"done\",\"work\":[\"implemented\"],\"fix\":\"change for %s\"}\n```\n", taskID, taskID)
}

func verdictOutput(reviewer string, status report.ReviewStatus, issues ...string) string {
	quoted := make([]string, len(issues))
	for i, issue := range issues {
		quoted[i] = fmt.Sprintf("%q", issue)
	}
	return fmt.Sprintf("```json\n{\"reviewer\":%q,\"status\":%q,\"issues\":[%s],\"next\":[]}\n```\n",
		reviewer, status, strings.Join(quoted, ","))
}

// alwaysDone answers every task prompt with a done report and every
// review prompt per the verdicts map (defaulting to approved).
func alwaysDone(todo *specfile.Todo, reviewers []config.Reviewer, verdicts map[string]string) func(string, agent.Category) (*agent.Result, error) {
	return func(prompt string, category agent.Category) (*agent.Result, error) {
		if category == agent.CategoryReview {
			for _, rv := range reviewers {
				if strings.Contains(prompt, fmt.Sprintf("%q", rv.ID)) {
					out := verdicts[rv.ID]
					if out == "" {
						out = verdictOutput(rv.ID, report.ReviewApproved)
					}
					return &agent.Result{Output: out}, nil
				}
			}
			return &agent.Result{Output: "unroutable review prompt"}, nil
		}
		for _, task := range todo.Tasks {
			if strings.Contains(prompt, "Your task is "+task.ID+".") {
				return &agent.Result{Output: doneOutput(task.ID)}, nil
			}
		}
		// Remediation task ids are not in the todo; report them done too.
		return &agent.Result{Output: doneOutput(remediationID(prompt))}, nil
	}
}

func remediationID(prompt string) string {
	const marker = "Your task is "
	i := strings.Index(prompt, marker)
	if i < 0 {
		return "unknown"
	}
	rest := prompt[i+len(marker):]
	if j := strings.IndexByte(rest, '.'); j >= 0 {
		return rest[:j]
	}
	return rest
}

func testSpec() *specfile.Spec {
	return &specfile.Spec{
		ID:     "F-102",
		Title:  "per-tenant rate limiting",
		Goals:  []string{"bound request rates per tenant"},
		Accept: []string{"limiter enforces the configured ceiling"},
	}
}

func testTodo(ids ...string) *specfile.Todo {
	todo := &specfile.Todo{ID: "F-102-todo"}
	for _, id := range ids {
		todo.Tasks = append(todo.Tasks, specfile.Task{
			ID:     id,
			Do:     "implement " + id,
			Verify: "tests for " + id + " pass",
		})
	}
	return todo
}

func testReviewers(ids ...string) []config.Reviewer {
	reviewers := make([]config.Reviewer, len(ids))
	for i, id := range ids {
		reviewers[i] = config.Reviewer{ID: id, Title: "reviewer " + id, Focus: "correctness"}
	}
	return reviewers
}

func newTestEngine(t *testing.T, dir string, opts Options, runner agent.Runner) (*Engine, store.Store) {
	t.Helper()
	s, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if opts.RunID == "" {
		opts.RunID = "run-test"
	}
	if opts.ReviewTimeout == 0 {
		opts.ReviewTimeout = time.Hour
	}
	eng, err := New(context.Background(), opts, s, nil, runner, nil, logging.NopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng, s
}

// runToDone ticks until the engine reports done, bounding the iteration
// count the way the real driver does.
func runToDone(t *testing.T, eng *Engine, maxTicks int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxTicks; i++ {
		done, err := eng.Tick(ctx)
		if err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if done {
			return
		}
	}
	t.Fatalf("run not done after %d ticks; state = %+v", maxTicks, eng.State())
}

func loadGate(t *testing.T, eng *Engine) *report.HumanGate {
	t.Helper()
	gate, err := eng.artifacts.LoadHumanGate(context.Background())
	if err != nil {
		t.Fatalf("LoadHumanGate() error = %v", err)
	}
	return gate
}

func TestTaskIndexAdvancesOncePerDoneReport(t *testing.T) {
	todo := testTodo("T1", "T2", "T3")
	runner := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	eng, s := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)
	ctx := context.Background()

	for i, want := range []int{1, 2, 3} {
		if _, err := eng.Tick(ctx); err != nil {
			t.Fatalf("Tick %d error = %v", i, err)
		}
		if got := eng.State().TaskIndex; got != want {
			t.Fatalf("after tick %d: TaskIndex = %d, want %d", i, got, want)
		}
	}

	for _, id := range []string{"T1", "T2", "T3"} {
		exists, err := s.Exists(ctx, report.TaskReportKey(id))
		if err != nil || !exists {
			t.Errorf("report for %s: exists = %v, err = %v", id, exists, err)
		}
	}

	// No reviewers configured: the next tick hands off to the human.
	done, err := eng.Tick(ctx)
	if err != nil || !done {
		t.Fatalf("final Tick() = (%v, %v), want (true, nil)", done, err)
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonApproved {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonApproved)
	}
}

func TestResumptionReadsPersistedIndex(t *testing.T) {
	dir := t.TempDir()
	todo := testTodo("T1", "T2")
	ctx := context.Background()

	first := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	eng, _ := newTestEngine(t, dir, Options{Spec: testSpec(), Todo: todo}, first)
	if _, err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	// A fresh engine over the same store must not re-execute T1.
	second := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	resumed, _ := newTestEngine(t, dir, Options{Spec: testSpec(), Todo: todo}, second)
	if got := resumed.State().TaskIndex; got != 1 {
		t.Fatalf("resumed TaskIndex = %d, want 1", got)
	}
	if _, err := resumed.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	prompts := second.recorded()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Your task is T2.") {
		t.Errorf("resumed run executed wrong task; prompts = %d, first contains T2 = %v",
			len(prompts), len(prompts) > 0 && strings.Contains(prompts[0], "T2"))
	}
}

func TestSummaryRequiresUnanimousApproval(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1", "rev-2", "rev-3")
	verdicts := map[string]string{
		"rev-2": verdictOutput("rev-2", report.ReviewChangesRequested, "missing edge case"),
	}
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, verdicts)}
	eng, _ := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 0,
	}, runner)

	runToDone(t, eng, 5)

	summary := loadSummary(t, eng, 1)
	if summary.Status != report.ReviewChangesRequested {
		t.Errorf("summary status = %q, want changes_requested with one rejection", summary.Status)
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonRetriesExhausted {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonRetriesExhausted)
	}
}

func loadSummary(t *testing.T, eng *Engine, round int) *report.ReviewSummary {
	t.Helper()
	data, err := eng.store.Load(context.Background(), report.ReviewSummaryKey(round))
	if err != nil {
		t.Fatalf("load summary round %d: %v", round, err)
	}
	var s report.ReviewSummary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return &s
}

func TestReviewRoundCeiling(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1")
	verdicts := map[string]string{
		"rev-1": verdictOutput("rev-1", report.ReviewChangesRequested, "tighten validation"),
	}
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, verdicts)}
	eng, s := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
	}, runner)

	runToDone(t, eng, 10)

	st := eng.State()
	if st.ReviewRound != 2 {
		t.Errorf("ReviewRound = %d, want 2 (reviewMax+1)", st.ReviewRound)
	}
	exists, err := s.Exists(context.Background(), report.ReviewResultKey(3, "rev-1"))
	if err != nil || exists {
		t.Errorf("round 3 artifact exists = %v, err = %v; a third round must never start", exists, err)
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonRetriesExhausted {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonRetriesExhausted)
	}
}

func TestRateLimitAppliesBackoffLadder(t *testing.T) {
	todo := testTodo("T1")
	runner := &fakeRunner{respond: func(string, agent.Category) (*agent.Result, error) {
		return &agent.Result{Output: "Error: rate limit reached, try again later"}, nil
	}}
	eng, _ := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return base }

	done, err := eng.Tick(context.Background())
	if err != nil || !done {
		t.Fatalf("Tick() = (%v, %v), want (true, nil)", done, err)
	}

	st := eng.State()
	if st.RateLimitAttempts != 1 {
		t.Errorf("RateLimitAttempts = %d, want 1", st.RateLimitAttempts)
	}
	if want := base.Add(time.Hour); !st.RateLimitUntil.Equal(want) {
		t.Errorf("RateLimitUntil = %v, want %v (attempt 0 backs off 1h)", st.RateLimitUntil, want)
	}
	if !st.Blocked || st.Phase != PhaseDone {
		t.Errorf("state = %+v, want blocked and done", st)
	}
	if gate := loadGate(t, eng); !strings.Contains(gate.Reason, "backing off 1h") {
		t.Errorf("gate reason = %q, want backoff description", gate.Reason)
	}
}

func TestRateLimitTerminalAttemptStopsRetrying(t *testing.T) {
	todo := testTodo("T1")
	runner := &fakeRunner{respond: func(string, agent.Category) (*agent.Result, error) {
		return &agent.Result{Output: "quota exceeded"}, nil
	}}
	eng, _ := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)
	eng.state.RateLimitAttempts = 3

	runToDone(t, eng, 1)

	st := eng.State()
	if st.RateLimitAttempts != 4 {
		t.Errorf("RateLimitAttempts = %d, want 4 (incremented even at the terminal rung)", st.RateLimitAttempts)
	}
	if !st.RateLimitUntil.IsZero() {
		t.Errorf("RateLimitUntil = %v, want zero at the terminal rung", st.RateLimitUntil)
	}
	if gate := loadGate(t, eng); !strings.Contains(gate.Reason, "no automatic retry") {
		t.Errorf("gate reason = %q, want terminal wording", gate.Reason)
	}
}

func TestElapsedRateLimitWindowIsCleared(t *testing.T) {
	todo := testTodo("T1")
	runner := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	eng, _ := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)

	eng.state.Phase = PhaseDone
	eng.state.RateLimitUntil = time.Now().Add(-time.Minute)

	done, err := eng.Tick(context.Background())
	if err != nil || !done {
		t.Fatalf("Tick() = (%v, %v), want (true, nil)", done, err)
	}
	if !eng.State().RateLimitUntil.IsZero() {
		t.Error("elapsed rate-limit window was not cleared")
	}
	if eng.State().Phase != PhaseDone {
		t.Error("clearing the window must not resume the paused phase")
	}
}

func TestMalformedReviewOutputIsPessimistic(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1")
	runner := &fakeRunner{respond: func(prompt string, category agent.Category) (*agent.Result, error) {
		if category == agent.CategoryReview {
			return &agent.Result{Output: "Looks good to me! Ship it."}, nil
		}
		return &agent.Result{Output: doneOutput("T1")}, nil
	}}
	eng, _ := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 2,
	}, runner)

	runToDone(t, eng, 5)

	rr, err := eng.artifacts.LoadReviewResult(context.Background(), 1, "rev-1")
	if err != nil {
		t.Fatalf("LoadReviewResult() error = %v", err)
	}
	if rr.Status != report.ReviewChangesRequested {
		t.Errorf("status = %q, want changes_requested fallback", rr.Status)
	}
	if len(rr.Issues) != 0 || len(rr.Next) != 0 {
		t.Errorf("fallback lists = %v / %v, want empty", rr.Issues, rr.Next)
	}

	// A rejection carrying no items must gate, not loop.
	if gate := loadGate(t, eng); gate.Reason != GateReasonEmptyRemediation {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonEmptyRemediation)
	}
}

func TestReviewTimeoutGates(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1")
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, nil)}
	eng, _ := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
		ReviewTimeout: time.Hour,
	}, runner)
	ctx := context.Background()

	// Task tick, then the transition tick into review.
	if _, err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if _, err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if eng.State().Phase != PhaseReview {
		t.Fatalf("phase = %q, want review", eng.State().Phase)
	}

	// The round started longer ago than the timeout allows.
	eng.state.RoundStartedAt = time.Now().Add(-2 * time.Hour)

	done, err := eng.Tick(ctx)
	if err != nil || !done {
		t.Fatalf("Tick() = (%v, %v), want (true, nil)", done, err)
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonReviewTimeout {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonReviewTimeout)
	}
}

func TestInterruptedTaskLeavesRunResumable(t *testing.T) {
	todo := testTodo("T1")
	runner := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	eng, s := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := eng.Tick(ctx)
	if done || err == nil {
		t.Fatalf("Tick() = (%v, %v), want (false, cancellation error)", done, err)
	}

	st := eng.State()
	if st.Phase != PhaseTasks || st.Failed || st.Blocked || st.TaskIndex != 0 {
		t.Errorf("state = %+v, want untouched tasks phase", st)
	}
	exists, err := s.Exists(context.Background(), report.TaskReportKey("T1"))
	if err != nil || exists {
		t.Errorf("report written for interrupted task: exists = %v, err = %v", exists, err)
	}
	if _, err := eng.artifacts.LoadHumanGate(context.Background()); err == nil {
		t.Error("human gate written for an interruption; run must stay resumable")
	}

	// Re-invoking with a live context completes the task normally.
	if _, err := eng.Tick(context.Background()); err != nil {
		t.Fatalf("resumed Tick() error = %v", err)
	}
	if got := eng.State().TaskIndex; got != 1 {
		t.Errorf("resumed TaskIndex = %d, want 1", got)
	}
}

func TestInterruptedReviewRoundStaysOpen(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1")
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, nil)}
	eng, s := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
	}, runner)
	ctx := context.Background()

	// Task tick, then the transition tick into review.
	if _, err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if _, err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	done, err := eng.Tick(cancelled)
	if done || err == nil {
		t.Fatalf("Tick() = (%v, %v), want (false, cancellation error)", done, err)
	}

	if eng.State().Phase != PhaseReview {
		t.Errorf("phase = %q, want review to stay open", eng.State().Phase)
	}
	exists, err := s.Exists(ctx, report.ReviewResultKey(1, "rev-1"))
	if err != nil || exists {
		t.Errorf("verdict persisted for a reviewer that never ran: exists = %v, err = %v", exists, err)
	}
	if _, err := eng.artifacts.LoadHumanGate(ctx); err == nil {
		t.Error("human gate written for an interruption; round must stay open")
	}

	// The resumed round dispatches the missing reviewer and approves.
	runToDone(t, eng, 3)
	if gate := loadGate(t, eng); gate.Reason != GateReasonApproved {
		t.Errorf("gate reason = %q, want %q after resume", gate.Reason, GateReasonApproved)
	}
}

func TestBlockedTaskHaltsRun(t *testing.T) {
	todo := testTodo("T1", "T2")
	runner := &fakeRunner{respond: func(string, agent.Category) (*agent.Result, error) {
		return &agent.Result{
			Output: "```json\n{\"taskId\":\"T1\",\"status\":\"blocked\",\"error\":\"missing credentials\"}\n```",
		}, nil
	}}
	eng, _ := newTestEngine(t, t.TempDir(), Options{Spec: testSpec(), Todo: todo}, runner)

	runToDone(t, eng, 1)

	st := eng.State()
	if !st.Blocked || st.TaskIndex != 0 {
		t.Errorf("state = %+v, want blocked with index unadvanced", st)
	}
	gate := loadGate(t, eng)
	if !strings.Contains(gate.Reason, "T1 blocked") || !strings.Contains(gate.Reason, "missing credentials") {
		t.Errorf("gate reason = %q, want task id and diagnostic", gate.Reason)
	}
}

func TestFingerprintMismatchHaltsImmediately(t *testing.T) {
	todo := testTodo("T1")
	runner := &fakeRunner{respond: alwaysDone(todo, nil, nil)}
	eng, _ := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo,
		ExpectedFingerprint: "aaaa", ActualFingerprint: "bbbb",
	}, runner)

	runToDone(t, eng, 1)

	if len(runner.recorded()) != 0 {
		t.Error("agent was invoked despite fingerprint mismatch")
	}
	gate := loadGate(t, eng)
	if !strings.HasPrefix(gate.Reason, errors.ErrFingerprintMismatch.Error()) {
		t.Errorf("gate reason = %q, want %q prefix", gate.Reason, errors.ErrFingerprintMismatch)
	}
	if !strings.Contains(gate.Reason, "expected aaaa, got bbbb") {
		t.Errorf("gate reason = %q, want both fingerprints", gate.Reason)
	}
}

func TestUsageLedgerAccrues(t *testing.T) {
	todo := testTodo("T1")
	reviewers := testReviewers("rev-1")
	runner := &fakeRunner{respond: func(prompt string, category agent.Category) (*agent.Result, error) {
		usage := agent.Usage{InputTokens: 100, OutputTokens: 40}
		if category == agent.CategoryReview {
			return &agent.Result{Output: verdictOutput("rev-1", report.ReviewApproved), Usage: usage}, nil
		}
		return &agent.Result{Output: doneOutput("T1"), Usage: usage}, nil
	}}
	eng, _ := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
	}, runner)

	runToDone(t, eng, 5)

	usage := eng.State().Usage
	if usage.Task.InputTokens != 100 || usage.Review.InputTokens != 100 {
		t.Errorf("per-category input = %d/%d, want 100/100", usage.Task.InputTokens, usage.Review.InputTokens)
	}
	if usage.Overall.Total() != 280 {
		t.Errorf("overall total = %d, want 280", usage.Overall.Total())
	}
}

func TestEndToEndApproval(t *testing.T) {
	todo := testTodo("T1", "T2")
	reviewers := testReviewers("rev-1", "rev-2")
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, nil)}
	eng, s := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
	}, runner)

	runToDone(t, eng, 10)

	st := eng.State()
	if st.Phase != PhaseDone || st.TaskIndex != 2 {
		t.Errorf("state = %+v, want done with both tasks complete", st)
	}
	if summary := loadSummary(t, eng, 1); summary.Status != report.ReviewApproved {
		t.Errorf("summary status = %q, want approved", summary.Status)
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonApproved {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonApproved)
	}
	for _, rv := range reviewers {
		exists, err := s.Exists(context.Background(), report.ReviewResultKey(1, rv.ID))
		if err != nil || !exists {
			t.Errorf("round 1 artifact for %s: exists = %v, err = %v", rv.ID, exists, err)
		}
	}
}

func TestEndToEndRejectionExhaustsRetries(t *testing.T) {
	todo := testTodo("T1", "T2")
	reviewers := testReviewers("rev-1", "rev-2")
	verdicts := map[string]string{
		"rev-2": verdictOutput("rev-2", report.ReviewChangesRequested, "tighten validation"),
	}
	runner := &fakeRunner{respond: alwaysDone(todo, reviewers, verdicts)}
	eng, s := newTestEngine(t, t.TempDir(), Options{
		Spec: testSpec(), Todo: todo, Reviewers: reviewers, ReviewMaxRetries: 1,
	}, runner)

	runToDone(t, eng, 15)
	ctx := context.Background()

	st := eng.State()
	if len(st.Remediation) != 1 {
		t.Fatalf("remediation list = %v, want exactly 1 task", st.Remediation)
	}
	if st.Remediation[0].ID != "R1-rev-2-1" || st.Remediation[0].Do != "tighten validation" {
		t.Errorf("remediation task = %+v, want reviewer issue carried verbatim", st.Remediation[0])
	}
	exists, err := s.Exists(ctx, report.TaskReportKey("R1-rev-2-1"))
	if err != nil || !exists {
		t.Errorf("remediation report: exists = %v, err = %v", exists, err)
	}
	for round, want := range map[int]bool{1: true, 2: true, 3: false} {
		exists, err := s.Exists(ctx, report.ReviewResultKey(round, "rev-2"))
		if err != nil || exists != want {
			t.Errorf("round %d artifact: exists = %v (err %v), want %v", round, exists, err, want)
		}
	}
	if gate := loadGate(t, eng); gate.Reason != GateReasonRetriesExhausted {
		t.Errorf("gate reason = %q, want %q", gate.Reason, GateReasonRetriesExhausted)
	}
}

func TestRemediationTaskOrdering(t *testing.T) {
	results := []*report.ReviewResult{
		{Reviewer: "rev-1", Status: report.ReviewChangesRequested, Issues: []string{"a", "b"}, Next: []string{"c"}},
		{Reviewer: "rev-2", Status: report.ReviewApproved, Issues: []string{"ignored"}},
		{Reviewer: "rev-3", Status: report.ReviewChangesRequested, Next: []string{"d"}},
	}

	tasks := RemediationTasks(2, results)

	wantIDs := []string{"R2-rev-1-1", "R2-rev-1-2", "R2-rev-1-3", "R2-rev-3-1"}
	wantDos := []string{"a", "b", "c", "d"}
	if len(tasks) != len(wantIDs) {
		t.Fatalf("len(tasks) = %d, want %d", len(tasks), len(wantIDs))
	}
	for i := range tasks {
		if tasks[i].ID != wantIDs[i] || tasks[i].Do != wantDos[i] {
			t.Errorf("tasks[%d] = {%s %s}, want {%s %s}", i, tasks[i].ID, tasks[i].Do, wantIDs[i], wantDos[i])
		}
	}
}
