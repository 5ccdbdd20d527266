// Package agent provides the boundary to the coding agent process: a
// registry of supported backends and a runner that executes one-shot
// prompt invocations with a timeout.
package agent

import (
	"strings"

	"github.com/specdrive/specdrive/internal/errors"
)

// Name identifies a supported agent backend.
type Name string

const (
	BackendClaude   Name = "claude"
	BackendCodex    Name = "codex"
	BackendOpenCode Name = "opencode"
)

// RunOptions configures a single backend invocation.
type RunOptions struct {
	// Model overrides the backend's default model when non-empty.
	Model string
}

// Backend provides backend-specific behavior for one-shot agent runs.
// The prompt is always delivered on stdin; Args returns the argv tail for
// a non-interactive, print-only execution.
type Backend interface {
	Name() Name
	DisplayName() string
	Command() string
	Args(opts RunOptions) []string
}

// New builds a Backend from the configured kind string. An empty kind
// selects Claude.
func New(kind string) (Backend, error) {
	switch strings.ToLower(kind) {
	case string(BackendClaude), "":
		return &ClaudeBackend{}, nil
	case string(BackendCodex):
		return &CodexBackend{}, nil
	case string(BackendOpenCode):
		return &OpenCodeBackend{}, nil
	default:
		return nil, errors.NewAgentError("unsupported agent kind: "+kind, errors.ErrUnknownBackend)
	}
}

// ClaudeBackend implements Backend for Claude Code.
type ClaudeBackend struct{}

func (c *ClaudeBackend) Name() Name { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) Command() string { return "claude" }

func (c *ClaudeBackend) Args(opts RunOptions) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

// CodexBackend implements Backend for Codex CLI.
type CodexBackend struct{}

func (c *CodexBackend) Name() Name { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) Command() string { return "codex" }

func (c *CodexBackend) Args(opts RunOptions) []string {
	args := []string{"exec", "--full-auto"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	// "-" reads the prompt from stdin.
	return append(args, "-")
}

// OpenCodeBackend implements Backend for the OpenCode CLI.
type OpenCodeBackend struct{}

func (o *OpenCodeBackend) Name() Name { return BackendOpenCode }

func (o *OpenCodeBackend) DisplayName() string { return "OpenCode" }

func (o *OpenCodeBackend) Command() string { return "opencode" }

func (o *OpenCodeBackend) Args(opts RunOptions) []string {
	args := []string{"run"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}
