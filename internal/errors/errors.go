// Package errors provides centralized error definitions and error handling
// utilities for the specdrive codebase. It defines domain-specific errors,
// error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - StateError: errors related to the workflow state store
//   - AgentError: errors related to agent invocation
//   - GitError: errors related to version-control operations
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewAgentError("agent invocation failed", cause).WithBackend("claude")
//	err := errors.NewGitError("push failed", cause).WithBranch("spec/f-102").WithGitOutput(out)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) { ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors shared across subsystems.
var (
	// ErrNotFound indicates a requested key or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a write-once record already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrFingerprintMismatch indicates the workflow definition does not
	// match the expected fingerprint.
	ErrFingerprintMismatch = errors.New("workflow fingerprint mismatch")
	// ErrUnknownBackend indicates the configured agent backend is unsupported.
	ErrUnknownBackend = errors.New("unknown agent backend")
)

// baseError carries the fields shared by all domain error types.
type baseError struct {
	message   string
	cause     error
	retryable bool
}

// Unwrap returns the underlying cause.
func (e *baseError) Unwrap() error { return e.cause }

// Is reports whether the cause chain matches target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Retryable reports whether the error is transient.
func (e *baseError) Retryable() bool { return e.retryable }

// StateError represents errors from the workflow state store.
type StateError struct {
	baseError
	Key     string
	Backend string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{
		baseError: baseError{message: message, cause: cause},
	}
}

// WithKey adds the store key to the error context.
func (e *StateError) WithKey(key string) *StateError {
	e.Key = key
	return e
}

// WithBackend adds the store backend name to the error context.
func (e *StateError) WithBackend(backend string) *StateError {
	e.Backend = backend
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}

	prefix := "state error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("state error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StateError) Is(target error) bool {
	if _, ok := target.(*StateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentError represents errors from agent invocation.
type AgentError struct {
	baseError
	Backend  string
	TaskID   string
	ExitCode int
}

// NewAgentError creates a new AgentError.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{message: message, cause: cause},
		ExitCode:  -1, // -1 indicates not set
	}
}

// WithBackend adds the agent backend name to the error context.
func (e *AgentError) WithBackend(backend string) *AgentError {
	e.Backend = backend
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *AgentError) WithTaskID(id string) *AgentError {
	e.TaskID = id
	return e
}

// WithExitCode adds the process exit code to the error context.
func (e *AgentError) WithExitCode(code int) *AgentError {
	e.ExitCode = code
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *AgentError) WithRetryable(r bool) *AgentError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}

	prefix := "agent error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("agent error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GitError represents errors related to version-control operations.
type GitError struct {
	baseError
	Branch     string
	Repository string
	GitOutput  string // Captured command output
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{message: message, cause: cause},
	}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithGitOutput adds command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = output
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\noutput: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// retryable is implemented by errors that know whether they are transient.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or any error in its chain) is marked
// as retryable.
func IsRetryable(err error) bool {
	for err != nil {
		if r, ok := err.(retryable); ok && r.Retryable() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
