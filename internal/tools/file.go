package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 256 * 1024

// FileTool reads, writes, and lists files, confined to the workspace root by
// the PathGuard.
type FileTool struct {
	paths *PathGuard
}

// FileArgs are the tool's input parameters.
type FileArgs struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// NewFileTool creates a file tool confined to paths.Root().
func NewFileTool(paths *PathGuard) *FileTool {
	return &FileTool{paths: paths}
}

// Name returns the tool name.
func (t *FileTool) Name() string {
	return "file"
}

// Description returns what the tool does.
func (t *FileTool) Description() string {
	return "Read, write, or list files in the workspace directory"
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *FileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list"},
				"description": "Operation to perform",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write (write action only)",
			},
		},
		"required": []string{"action", "path"},
	}
}

// Execute implements Tool.
func (t *FileTool) Execute(ctx context.Context, args string) (string, error) {
	var params FileArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}

	path, err := t.paths.Resolve(params.Path)
	if err != nil {
		return "", err
	}

	switch params.Action {
	case "read":
		return t.read(path)
	case "write":
		return t.write(path, params.Content)
	case "list":
		return t.list(path)
	default:
		return "", NewValidationError(fmt.Errorf("unknown action: %s", params.Action))
	}
}

func (t *FileTool) read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to stat file: %w", err))
	}
	if info.Size() > maxReadBytes {
		return "", NewExecutionError(fmt.Errorf("file too large: %d bytes", info.Size()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to read file: %w", err))
	}
	return string(data), nil
}

func (t *FileTool) write(path, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to create directory: %w", err))
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to write file: %w", err))
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (t *FileTool) list(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to list directory: %w", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
}
