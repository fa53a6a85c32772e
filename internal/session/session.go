// Package session owns per-conversation durable state: the ordered turn
// history and the memory notes derived from it. Each session key maps to one
// append-only JSONL log that is replayed to reconstruct the session after a
// restart or after idle archival.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/omnibot/internal/llm"
)

// Turn is one (role, content) pair in a conversation, in arrival order.
type Turn struct {
	Role       llm.Role  `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MemoryNote is a durable fact extracted from a session. Notes are immutable
// once written; a conflicting newer note supersedes an older one only at
// context-building policy level, never by editing.
type MemoryNote struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// entry is one line of the JSONL session log: either a turn or a note.
type entry struct {
	Kind       string    `json:"kind"` // "turn" or "note"
	Role       llm.Role  `json:"role,omitempty"`
	Content    string    `json:"content,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is one conversation's active state. All mutation goes through the
// Manager, which also guarantees at most one writer per key.
type Session struct {
	Key  string
	File string

	mu         sync.Mutex
	turns      []Turn
	notes      []MemoryNote
	lastActive time.Time
}

// Turns returns a copy of the ordered turn list.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Notes returns a copy of the memory notes in creation order.
func (s *Session) Notes() []MemoryNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryNote, len(s.notes))
	copy(out, s.notes)
	return out
}

// LastActive returns when the session last gained a turn.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// appendTurn records the turn in memory and in the log.
func (s *Session) appendTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendEntry(entry{
		Kind:       "turn",
		Role:       t.Role,
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		Timestamp:  t.Timestamp,
	}); err != nil {
		return err
	}

	s.turns = append(s.turns, t)
	s.lastActive = t.Timestamp
	return nil
}

// appendNote records the memory note in memory and in the log.
func (s *Session) appendNote(n MemoryNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendEntry(entry{
		Kind:      "note",
		Note:      n.Text,
		Timestamp: n.CreatedAt,
	}); err != nil {
		return err
	}

	s.notes = append(s.notes, n)
	return nil
}

func (s *Session) appendEntry(e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal session entry: %w", err)
	}

	file, err := os.OpenFile(s.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write session entry: %w", err)
	}
	return nil
}

// load replays the JSONL log into memory. Malformed lines are skipped so a
// corrupt line damages one entry, not the whole key.
func (s *Session) load() error {
	file, err := os.Open(s.File)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}

		switch e.Kind {
		case "turn":
			s.turns = append(s.turns, Turn{
				Role:       e.Role,
				Content:    e.Content,
				ToolCallID: e.ToolCallID,
				Timestamp:  e.Timestamp,
			})
			if e.Timestamp.After(s.lastActive) {
				s.lastActive = e.Timestamp
			}
		case "note":
			s.notes = append(s.notes, MemoryNote{Text: e.Note, CreatedAt: e.Timestamp})
		}
	}
	return scanner.Err()
}

// fileNameForKey maps a session key to a log file name. Keys contain a colon
// and may contain platform-specific ids, so everything outside a safe set is
// replaced.
func fileNameForKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".jsonl"
}

func sessionFilePath(baseDir, key string) string {
	return filepath.Join(baseDir, fileNameForKey(key))
}
