package agent

import (
	"strings"
	"testing"

	"github.com/specdrive/specdrive/internal/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind     string
		wantName Name
		wantErr  bool
	}{
		{"claude", BackendClaude, false},
		{"CLAUDE", BackendClaude, false},
		{"", BackendClaude, false},
		{"codex", BackendCodex, false},
		{"opencode", BackendOpenCode, false},
		{"gemini", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			backend, err := New(tt.kind)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrUnknownBackend) {
					t.Errorf("New(%q) error = %v, want ErrUnknownBackend", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.kind, err)
			}
			if backend.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", backend.Name(), tt.wantName)
			}
		})
	}
}

func TestClaudeArgs(t *testing.T) {
	b := &ClaudeBackend{}

	args := b.Args(RunOptions{})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--print") {
		t.Errorf("args missing --print: %v", args)
	}
	if strings.Contains(joined, "--model") {
		t.Errorf("args contain --model without override: %v", args)
	}

	args = b.Args(RunOptions{Model: "opus"})
	joined = strings.Join(args, " ")
	if !strings.Contains(joined, "--model opus") {
		t.Errorf("args missing model override: %v", args)
	}
}

func TestCodexArgsReadStdin(t *testing.T) {
	b := &CodexBackend{}
	args := b.Args(RunOptions{})
	if args[len(args)-1] != "-" {
		t.Errorf("codex args should end with stdin marker, got %v", args)
	}
	if args[0] != "exec" {
		t.Errorf("codex args should start with exec, got %v", args)
	}
}

func TestBackendCommands(t *testing.T) {
	tests := []struct {
		backend Backend
		command string
	}{
		{&ClaudeBackend{}, "claude"},
		{&CodexBackend{}, "codex"},
		{&OpenCodeBackend{}, "opencode"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := tt.backend.Command(); got != tt.command {
				t.Errorf("Command() = %q, want %q", got, tt.command)
			}
			if tt.backend.DisplayName() == "" {
				t.Error("DisplayName() is empty")
			}
		})
	}
}
