package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellTool runs allow-listed commands inside the workspace root. Every
// command passes the CommandGuard first; the process is spawned directly,
// never through a shell, so validated input cannot regain metacharacter
// meaning.
type ShellTool struct {
	guard   *CommandGuard
	paths   *PathGuard
	timeout time.Duration
}

// ShellArgs are the tool's input parameters.
type ShellArgs struct {
	Command string `json:"command"`
}

// NewShellTool creates a shell tool confined to paths.Root() and guard's
// allow-list.
func NewShellTool(guard *CommandGuard, paths *PathGuard, timeout time.Duration) *ShellTool {
	return &ShellTool{guard: guard, paths: paths, timeout: timeout}
}

// Name returns the tool name.
func (t *ShellTool) Name() string {
	return "shell"
}

// Description returns what the tool does.
func (t *ShellTool) Description() string {
	return "Run an allow-listed command in the workspace directory and return its output"
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command line to run. Shell metacharacters are rejected.",
			},
		},
		"required": []string{"command"},
	}
}

// Execute implements Tool.
func (t *ShellTool) Execute(ctx context.Context, args string) (string, error) {
	var params ShellArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}

	if err := t.guard.Validate(params.Command); err != nil {
		return "", err
	}

	fields := strings.Fields(params.Command)

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	cmd.Dir = t.paths.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", NewExecutionError(fmt.Errorf("command failed: %w: %s", err, stderr.String()))
	}

	out := stdout.String()
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}
