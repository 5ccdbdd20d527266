package agent

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/specdrive/specdrive/internal/errors"
	"github.com/specdrive/specdrive/internal/logging"
)

// Category distinguishes task invocations from review invocations, which
// carry separate timeouts and usage counters.
type Category string

const (
	CategoryTask   Category = "task"
	CategoryReview Category = "review"
)

// Result is the outcome of one agent invocation.
type Result struct {
	// Output is the combined stdout+stderr of the agent process. The
	// structured payload may be embedded anywhere within it.
	Output string
	// Usage holds the token counts parsed from the output, zero when the
	// output carried none.
	Usage Usage
}

// Runner invokes an agent with a prompt and returns its free-text output.
type Runner interface {
	Run(ctx context.Context, prompt string, category Category) (*Result, error)
}

// ProcessRunner executes the configured backend as a subprocess. The
// prompt is fed on stdin; the invocation is bounded by the per-category
// timeout. This is the only suspending operation in a run.
type ProcessRunner struct {
	backend       Backend
	opts          RunOptions
	dir           string
	taskTimeout   time.Duration
	reviewTimeout time.Duration
	logger        *logging.Logger
	usage         *UsageParser
}

// NewProcessRunner creates a ProcessRunner. dir is the working directory
// for the agent process (the repository the agent edits).
func NewProcessRunner(backend Backend, opts RunOptions, dir string, taskTimeout, reviewTimeout time.Duration, logger *logging.Logger) *ProcessRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ProcessRunner{
		backend:       backend,
		opts:          opts,
		dir:           dir,
		taskTimeout:   taskTimeout,
		reviewTimeout: reviewTimeout,
		logger:        logger,
		usage:         NewUsageParser(),
	}
}

// Run invokes the backend once with the given prompt.
func (r *ProcessRunner) Run(ctx context.Context, prompt string, category Category) (*Result, error) {
	timeout := r.taskTimeout
	if category == CategoryReview {
		timeout = r.reviewTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.backend.Command(), r.backend.Args(r.opts)...)
	cmd.Dir = r.dir
	cmd.Stdin = strings.NewReader(prompt)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	output := buf.String()
	r.logger.Debug("agent invocation finished",
		"backend", string(r.backend.Name()),
		"category", string(category),
		"elapsed", elapsed.String(),
		"output_bytes", len(output),
	)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewAgentError("agent invocation timed out", ctx.Err()).
				WithBackend(string(r.backend.Name())).
				WithRetryable(true)
		}
		agentErr := errors.NewAgentError("agent invocation failed", err).
			WithBackend(string(r.backend.Name()))
		if exitErr, ok := err.(*exec.ExitError); ok {
			agentErr = agentErr.WithExitCode(exitErr.ExitCode())
		}
		// The output often still carries a usable payload or a
		// rate-limit signature; surface it alongside the error.
		return &Result{Output: output, Usage: r.usage.Parse(output)}, agentErr
	}

	return &Result{Output: output, Usage: r.usage.Parse(output)}, nil
}
