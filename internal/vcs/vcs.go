// Package vcs provides the version-control boundary used after each
// completed task: detecting pending changes, setting the commit
// description, and pushing the named branch. The concrete implementation
// wraps the git CLI; the Client interface allows mocks in tests.
package vcs

import (
	"context"
	"os/exec"

	"github.com/specdrive/specdrive/internal/errors"
)

// ErrNoRemoteBranch indicates a push was rejected because the branch does
// not yet exist on the remote. This is the one push failure that gets an
// automatic recovery (track, then retry once).
var ErrNoRemoteBranch = errors.New("branch has no remote counterpart")

// Client is the version-control boundary.
type Client interface {
	// HasPendingChanges reports whether uncommitted working changes exist.
	HasPendingChanges(ctx context.Context) (bool, error)

	// SetDescription records message as the description of the pending
	// change (staging and committing it).
	SetDescription(ctx context.Context, message string) error

	// Push pushes the current branch to its upstream. Returns
	// ErrNoRemoteBranch when no upstream exists yet; branch is carried
	// for diagnostics and the TrackRemote recovery.
	Push(ctx context.Context, branch string) error

	// TrackRemote creates the remote counterpart for the named branch.
	TrackRemote(ctx context.Context, branch string) error
}

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
