// Shell Command Executor Tool.
//
// Information Hiding:
// - Process execution details hidden
// - Argument validation hidden
// - Output document layout abstracted

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/richinex/llmbridge/internal/slogx"
	"github.com/richinex/llmbridge/internal/toolargs"
	"github.com/richinex/llmbridge/llm"
	"github.com/tidwall/sjson"
)

// DefaultShellTimeout applies when the model omits a timeout.
const DefaultShellTimeout = 10 * time.Second

// MaxShellTimeout caps the timeout a model may request.
const MaxShellTimeout = time.Hour

// Exit codes reported for failures that have no process exit status.
const (
	exitCodeTimeout  = 124
	exitCodeNotFound = 127
)

// ShellTool runs an argv array directly, without a shell.
type ShellTool struct {
	defaultTimeout time.Duration
}

// NewShellTool creates a shell tool with the default timeout.
func NewShellTool() *ShellTool {
	return &ShellTool{defaultTimeout: DefaultShellTimeout}
}

// WithDefaultTimeout sets the timeout used when the model omits one.
func (t *ShellTool) WithDefaultTimeout(timeout time.Duration) *ShellTool {
	t.defaultTimeout = timeout
	return t
}

// Definition returns the shell tool schema.
func (t *ShellTool) Definition() llm.ToolDefinition {
	return llm.ShellToolDefinition()
}

type shellArgs struct {
	Command []string `json:"command"`
	Workdir string   `json:"workdir,omitempty"`
	Timeout *float64 `json:"timeout,omitempty"` // milliseconds
}

// ParseShellArgs decodes and validates shell tool arguments.
func ParseShellArgs(arguments string) (command []string, workdir string, timeout time.Duration, err error) {
	a, err := toolargs.Decode[shellArgs](arguments)
	if err != nil {
		return nil, "", 0, fmt.Errorf("invalid arguments: %w", err)
	}
	if len(a.Command) == 0 || strings.TrimSpace(a.Command[0]) == "" {
		return nil, "", 0, errors.New("command cannot be empty")
	}
	if a.Timeout != nil {
		if *a.Timeout <= 0 {
			return nil, "", 0, fmt.Errorf("timeout must be positive, got %v", *a.Timeout)
		}
		// Clamp in milliseconds; converting a huge float to Duration overflows.
		if *a.Timeout >= float64(MaxShellTimeout/time.Millisecond) {
			timeout = MaxShellTimeout
		} else {
			timeout = time.Duration(*a.Timeout * float64(time.Millisecond))
		}
	}
	return a.Command, a.Workdir, timeout, nil
}

// Execute runs the command and returns a JSON document of the form
// {"output": ..., "metadata": {"exit_code": n, "duration_seconds": s}}.
func (t *ShellTool) Execute(ctx context.Context, arguments string) (string, error) {
	command, workdir, timeout, err := ParseShellArgs(arguments)
	if err != nil {
		return "", err
	}
	if timeout == 0 {
		timeout = t.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Debug("running shell command",
		slog.Any("command", command),
		slog.String("workdir", workdir),
		slog.Duration("timeout", timeout))

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workdir

	start := time.Now()
	output, runErr := cmd.CombinedOutput()
	duration := time.Since(start)

	exitCode := 0
	text := string(output)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		exitCode = exitCodeTimeout
		text += fmt.Sprintf("\ncommand timed out after %s", timeout)
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = exitCodeNotFound
			text += runErr.Error()
		}
	}

	if exitCode != 0 {
		slog.Debug("shell command failed", slog.Int("exit_code", exitCode), slogx.Error(runErr))
	}

	return formatShellOutput(text, exitCode, duration)
}

func formatShellOutput(output string, exitCode int, duration time.Duration) (string, error) {
	doc, err := sjson.Set("", "output", output)
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	if doc, err = sjson.Set(doc, "metadata.exit_code", exitCode); err != nil {
		return "", fmt.Errorf("encode exit code: %w", err)
	}
	seconds := math.Round(duration.Seconds()*10) / 10
	if doc, err = sjson.Set(doc, "metadata.duration_seconds", seconds); err != nil {
		return "", fmt.Errorf("encode duration: %w", err)
	}
	return doc, nil
}
