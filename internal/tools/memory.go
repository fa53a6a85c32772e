package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mkravets/omnibot/internal/bus"
)

// NoteStore is the slice of the session manager the memory tool needs.
type NoteStore interface {
	AddMemoryNote(key, text string) error
}

// MemoryTool lets the model record a durable fact about the conversation it
// is running in. Notes outlive idle archival and are injected into every
// later context for the same session key. The key comes from the executor,
// never from model arguments, so a fact cannot be written into another
// conversation.
type MemoryTool struct {
	notes NoteStore
	key   string
}

// MemoryArgs are the tool's input parameters.
type MemoryArgs struct {
	Fact string `json:"fact"`
}

// NewMemoryTool creates a memory tool bound to one conversation.
func NewMemoryTool(notes NoteStore, channel, chatID string) *MemoryTool {
	return &MemoryTool{notes: notes, key: bus.SessionKey(channel, chatID)}
}

// Name returns the tool name.
func (t *MemoryTool) Name() string {
	return "remember"
}

// Description returns what the tool does.
func (t *MemoryTool) Description() string {
	return "Save an important fact about this conversation to long-term memory. Use it when the user shares something worth keeping, like their name, preferences, or standing instructions."
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *MemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fact": map[string]any{
				"type":        "string",
				"description": "The fact to remember, stated in one short sentence",
			},
		},
		"required": []string{"fact"},
	}
}

// Execute implements Tool.
func (t *MemoryTool) Execute(ctx context.Context, args string) (string, error) {
	var params MemoryArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}

	fact := strings.TrimSpace(params.Fact)
	if fact == "" {
		return "", NewValidationError(fmt.Errorf("fact cannot be empty"))
	}

	if err := t.notes.AddMemoryNote(t.key, fact); err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to save fact: %w", err))
	}
	return fmt.Sprintf("remembered: %s", fact), nil
}
