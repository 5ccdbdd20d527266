package vcs

import (
	"context"
	"strings"

	"github.com/specdrive/specdrive/internal/errors"
)

// GitClient implements Client using git CLI commands.
type GitClient struct {
	repoDir  string
	executor CommandExecutor
}

// NewGitClient creates a GitClient for the repository at repoDir.
func NewGitClient(repoDir string) *GitClient {
	return &GitClient{
		repoDir:  repoDir,
		executor: NewCLICommandExecutor(),
	}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor.
// This is primarily useful for testing.
func NewGitClientWithExecutor(repoDir string, executor CommandExecutor) *GitClient {
	return &GitClient{
		repoDir:  repoDir,
		executor: executor,
	}
}

// HasPendingChanges reports whether uncommitted working changes exist.
func (g *GitClient) HasPendingChanges(ctx context.Context) (bool, error) {
	output, err := g.executor.Run(ctx, g.repoDir, "git", "status", "--porcelain")
	if err != nil {
		return false, errors.NewGitError("failed to check status", err).
			WithRepository(g.repoDir).
			WithGitOutput(string(output))
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// SetDescription stages all changes and commits them with message.
func (g *GitClient) SetDescription(ctx context.Context, message string) error {
	output, err := g.executor.Run(ctx, g.repoDir, "git", "add", "-A")
	if err != nil {
		return errors.NewGitError("failed to stage changes", err).
			WithRepository(g.repoDir).
			WithGitOutput(string(output))
	}

	output, err = g.executor.Run(ctx, g.repoDir, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return nil
		}
		return errors.NewGitError("failed to commit changes", err).
			WithRepository(g.repoDir).
			WithGitOutput(string(output))
	}
	return nil
}

// Push pushes the current branch to its upstream. The refspec is left
// implicit: an explicit "push origin <branch>" would create the remote
// branch itself and the missing-upstream rejection could never occur,
// leaving a never-pushed branch unrecoverable here.
func (g *GitClient) Push(ctx context.Context, branch string) error {
	output, err := g.executor.Run(ctx, g.repoDir, "git", "push")
	if err != nil {
		if isMissingRemoteBranch(string(output)) {
			return ErrNoRemoteBranch
		}
		return errors.NewGitError("failed to push branch", err).
			WithBranch(branch).
			WithRepository(g.repoDir).
			WithGitOutput(string(output)).
			WithRetryable(true)
	}
	return nil
}

// TrackRemote creates the remote counterpart for branch and sets it as
// upstream.
func (g *GitClient) TrackRemote(ctx context.Context, branch string) error {
	output, err := g.executor.Run(ctx, g.repoDir, "git", "push", "--set-upstream", "origin", branch)
	if err != nil {
		return errors.NewGitError("failed to track remote branch", err).
			WithBranch(branch).
			WithRepository(g.repoDir).
			WithGitOutput(string(output))
	}
	return nil
}

// isMissingRemoteBranch matches the push rejections git emits when the
// branch has never been pushed.
func isMissingRemoteBranch(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "has no upstream branch") ||
		strings.Contains(lower, "does not match any") ||
		strings.Contains(lower, "no such ref")
}
