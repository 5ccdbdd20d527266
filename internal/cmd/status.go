package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdrive/specdrive/internal/config"
	"github.com/specdrive/specdrive/internal/engine"
	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/report"
	"github.com/specdrive/specdrive/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted workflow state and the human gate, if any",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stateStore, artifactStore, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	data, err := stateStore.Load(ctx, engine.StateKey)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("No run in progress")
		return nil
	}
	if err != nil {
		return err
	}

	var st engine.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("corrupt workflow state: %w", err)
	}

	fmt.Printf("Run:        %s\n", st.RunID)
	fmt.Printf("Phase:      %s\n", st.Phase)
	fmt.Printf("Task index: %d\n", st.TaskIndex)
	if st.ReviewRound > 0 {
		fmt.Printf("Round:      %d (retries used: %d)\n", st.ReviewRound, st.ReviewRetries)
	}
	if len(st.Remediation) > 0 {
		fmt.Printf("Remediation: %d/%d\n", st.ReviewTaskIndex, len(st.Remediation))
	}
	if st.RateLimitAttempts > 0 {
		fmt.Printf("Rate limits: %d attempt(s)", st.RateLimitAttempts)
		if !st.RateLimitUntil.IsZero() {
			fmt.Printf(", paused until %s", st.RateLimitUntil.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	fmt.Printf("Tokens:     %d in / %d out (tasks %d, reviews %d)\n",
		st.Usage.Overall.InputTokens, st.Usage.Overall.OutputTokens,
		st.Usage.Task.Total(), st.Usage.Review.Total())

	gate, err := report.NewArtifacts(artifactStore).LoadHumanGate(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nHuman gate: %s\n", gate.Reason)
	return nil
}
