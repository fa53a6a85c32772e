package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/omnibot/internal/llm"
	"github.com/mkravets/omnibot/internal/logger"
)

// ErrSessionNotFound is returned when a key is not in the active set, for
// example because it was archived between lookup and append.
var ErrSessionNotFound = errors.New("session not found")

// Manager maintains the active session set and the durable logs behind it.
// Cross-key operations take the manager lock; per-key mutual exclusion during
// a turn is the executor's single-active-run rule, not a lock here.
type Manager struct {
	baseDir    string
	idleWindow time.Duration
	logger     *logger.Logger

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager creates a session manager rooted at baseDir. Sessions idle
// longer than idleWindow are archived by Sweep.
func NewManager(baseDir string, idleWindow time.Duration, log *logger.Logger) (*Manager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &Manager{
		baseDir:    baseDir,
		idleWindow: idleWindow,
		logger:     log,
		active:     make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the active session for key, reviving it from its log
// (archived history included) or creating an empty one if the key is new.
func (m *Manager) GetOrCreate(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.active[key]; ok {
		return s, nil
	}

	s := &Session{
		Key:        key,
		File:       sessionFilePath(m.baseDir, key),
		lastActive: time.Now(),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	m.active[key] = s
	m.logger.Debug("session activated",
		logger.Field{Key: "session_key", Value: key},
		logger.Field{Key: "turns", Value: len(s.turns)})
	return s, nil
}

// AppendTurn adds a turn to the active session for key and updates its
// last-active time. Returns ErrSessionNotFound if the key was archived.
func (m *Manager) AppendTurn(key string, role llm.Role, content string) error {
	return m.appendTurn(key, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

// AppendToolResult adds a tool-result turn matched to callID.
func (m *Manager) AppendToolResult(key, callID, content string) error {
	return m.appendTurn(key, Turn{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: callID,
		Timestamp:  time.Now(),
	})
}

func (m *Manager) appendTurn(key string, t Turn) error {
	m.mu.Lock()
	s, ok := m.active[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s.appendTurn(t)
}

// AddMemoryNote appends an immutable note to the session. Whether a newer
// note supersedes an older one is resolved by the reader, not here.
func (m *Manager) AddMemoryNote(key, text string) error {
	m.mu.Lock()
	s, ok := m.active[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s.appendNote(MemoryNote{Text: text, CreatedAt: time.Now()})
}

// BuildContext assembles the ordered message sequence for a provider call:
// all memory notes (as one leading system message), then the turn history
// trimmed to the character budget. Trimming drops the oldest non-system
// turns first and never drops the most recent turn.
func (m *Manager) BuildContext(key string, budget int) ([]llm.Message, error) {
	m.mu.Lock()
	s, ok := m.active[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	turns := s.Turns()
	notes := s.Notes()

	var out []llm.Message
	used := 0

	if len(notes) > 0 {
		var b strings.Builder
		b.WriteString("Known facts about this conversation:\n")
		for _, n := range notes {
			b.WriteString("- ")
			b.WriteString(n.Text)
			b.WriteByte('\n')
		}
		memo := llm.Message{Role: llm.RoleSystem, Content: b.String()}
		out = append(out, memo)
		used += len(memo.Content)
	}

	kept := trimToBudget(turns, budget-used)
	for _, t := range kept {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content, ToolCallID: t.ToolCallID})
	}
	return out, nil
}

// trimToBudget keeps a suffix of the turn list that fits the budget, plus
// every system turn. The most recent turn is always kept even if it alone
// exceeds the budget.
func trimToBudget(turns []Turn, budget int) []Turn {
	if len(turns) == 0 {
		return nil
	}

	total := 0
	for _, t := range turns {
		total += len(t.Content)
	}

	drop := make([]bool, len(turns))
	for i := 0; total > budget && i < len(turns)-1; i++ {
		if turns[i].Role == llm.RoleSystem {
			continue
		}
		drop[i] = true
		total -= len(turns[i].Content)
	}

	kept := make([]Turn, 0, len(turns))
	for i, t := range turns {
		if !drop[i] {
			kept = append(kept, t)
		}
	}
	return kept
}

// Reset starts key over with an empty history: the active session leaves
// the set and its log is moved aside, so the next message begins a fresh
// session. The rotated log stays on disk.
func (m *Manager) Reset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, key)

	path := sessionFilePath(m.baseDir, key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	rotated := fmt.Sprintf("%s.%d", path, time.Now().UnixNano())
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("failed to rotate session log: %w", err)
	}

	m.logger.Info("session reset",
		logger.Field{Key: "session_key", Value: key})
	return nil
}

// Sweep archives sessions idle past the window: they leave the active set
// while their logs stay on disk. Returns how many were archived.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	archived := 0
	for key, s := range m.active {
		if now.Sub(s.LastActive()) > m.idleWindow {
			delete(m.active, key)
			archived++
			m.logger.Info("session archived",
				logger.Field{Key: "session_key", Value: key},
				logger.Field{Key: "idle", Value: now.Sub(s.LastActive()).String()})
		}
	}
	return archived
}

// Run sweeps idle sessions on the given interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// ActiveCount returns the number of sessions currently in the active set.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
