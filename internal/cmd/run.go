package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/specdrive/specdrive/internal/agent"
	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/engine"
	"github.com/specdrive/specdrive/internal/logging"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/specfile"
	"github.com/specdrive/specdrive/internal/store"
	"github.com/specdrive/specdrive/internal/vcs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the workflow until done or the iteration budget is spent",
	Long: `Run ticks the orchestration engine up to run.max_iterations times.
Each tick performs one unit of work: one task invocation, one review
round, or one phase transition. A run that stops mid-way resumes from
persisted state on the next invocation.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = cfg.Spec.StateDir
	}
	logger, err := logging.New(logDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec, err := specfile.LoadSpec(cfg.Spec.SpecPath)
	if err != nil {
		return err
	}
	todo, err := specfile.LoadTodo(cfg.Spec.TodoPath)
	if err != nil {
		return err
	}

	var actual string
	if cfg.Integrity.Fingerprint != "" {
		actual, err = specfile.Fingerprint(cfg.Spec.TodoPath)
		if err != nil {
			return err
		}
	}

	stateStore, artifactStore, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	backend, err := agent.New(cfg.Agent.Kind)
	if err != nil {
		return err
	}
	repoDir := cfg.VCS.RepoDir
	if repoDir == "" {
		repoDir = "."
	}
	runner := agent.NewProcessRunner(backend, agent.RunOptions{Model: cfg.Agent.Model},
		repoDir, cfg.Agent.Timeout, cfg.Agent.ReviewTimeout, logger)

	var committer *vcs.Committer
	if cfg.VCS.Enabled {
		committer = vcs.NewCommitter(vcs.NewGitClient(repoDir), cfg.VCS.Branch, logger)
	}

	eng, err := engine.New(ctx, engine.Options{
		Spec:                spec,
		Todo:                todo,
		Reviewers:           cfg.Reviewers,
		ReviewMaxRetries:    cfg.Review.MaxRetries,
		ReviewTimeout:       cfg.Review.Timeout,
		ExpectedFingerprint: cfg.Integrity.Fingerprint,
		ActualFingerprint:   actual,
		RunID:               cfg.Run.ID,
	}, stateStore, report.NewArtifacts(artifactStore), runner, committer, logger)
	if err != nil {
		return err
	}

	st := eng.State()
	logger.Info("run starting",
		"run_id", st.RunID,
		"spec_id", spec.ID,
		"phase", string(st.Phase),
		"tasks", len(todo.Tasks),
		"reviewers", len(cfg.Reviewers),
	)

	for i := 0; i < cfg.Run.MaxIterations; i++ {
		done, err := eng.Tick(ctx)
		if err != nil {
			return err
		}
		if done {
			printOutcome(eng)
			return nil
		}
	}

	fmt.Printf("iteration budget (%d) spent before completion; re-run to continue\n", cfg.Run.MaxIterations)
	return nil
}

func printOutcome(eng *engine.Engine) {
	st := eng.State()
	fmt.Printf("Run:    %s\n", st.RunID)
	fmt.Printf("Phase:  %s\n", st.Phase)
	fmt.Printf("Tasks:  %d completed\n", st.TaskIndex)
	if st.ReviewRound > 0 {
		fmt.Printf("Rounds: %d review round(s)\n", st.ReviewRound)
	}
	fmt.Printf("Tokens: %d in / %d out\n", st.Usage.Overall.InputTokens, st.Usage.Overall.OutputTokens)
	switch {
	case st.Failed:
		fmt.Println("Result: failed; see the human-gate artifact for the reason")
	case st.Blocked:
		fmt.Println("Result: blocked; see the human-gate artifact for the reason")
	default:
		fmt.Println("Result: awaiting human review")
	}
}

// openStores opens the state store and the artifact store. With the file
// backend they are separate directories; with postgres they share one
// connection pool.
func openStores(ctx context.Context, cfg *config.Config) (state, artifacts store.Store, closeFn func(), err error) {
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPGStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, func() { pg.Close() }, nil
	default:
		stateStore, err := store.NewFileStore(cfg.Spec.StateDir)
		if err != nil {
			return nil, nil, nil, err
		}
		artifactStore, err := store.NewFileStore(cfg.Spec.ReportDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return stateStore, artifactStore, func() {
			stateStore.Close()
			artifactStore.Close()
		}, nil
	}
}
