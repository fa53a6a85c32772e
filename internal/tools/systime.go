package tools

import (
	"context"
	"fmt"
	"time"
)

// SystemTimeTool reports the current local time.
type SystemTimeTool struct{}

// NewSystemTimeTool creates a new SystemTimeTool.
func NewSystemTimeTool() *SystemTimeTool {
	return &SystemTimeTool{}
}

// Name returns the tool name.
func (t *SystemTimeTool) Name() string {
	return "system_time"
}

// Description returns what the tool does.
func (t *SystemTimeTool) Description() string {
	return "Returns the current system date and time"
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *SystemTimeTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

// Execute implements Tool.
func (t *SystemTimeTool) Execute(ctx context.Context, args string) (string, error) {
	now := time.Now().Local()
	result := fmt.Sprintf("RFC3339: %s\n", now.Format(time.RFC3339))
	result += fmt.Sprintf("Human readable: %s", now.Format("Monday, 02 January 2006, 15:04:05 MST"))
	return result, nil
}
