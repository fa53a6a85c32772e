package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/omnibot/internal/llm"
	"github.com/mkravets/omnibot/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func testManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(dir, 30*time.Minute, testLogger(t))
	require.NoError(t, err)
	return m
}

func TestRoundTripReplay(t *testing.T) {
	dir := t.TempDir()
	key := "telegram:42"

	m := testManager(t, dir)
	_, err := m.GetOrCreate(key)
	require.NoError(t, err)

	require.NoError(t, m.AppendTurn(key, llm.RoleUser, "what's the weather"))
	require.NoError(t, m.AppendTurn(key, llm.RoleAssistant, "sunny"))
	require.NoError(t, m.AppendToolResult(key, "call-1", "22C"))
	require.NoError(t, m.AddMemoryNote(key, "user lives in Lisbon"))

	// A fresh manager over the same directory replays the log.
	m2 := testManager(t, dir)
	s, err := m2.GetOrCreate(key)
	require.NoError(t, err)

	turns := s.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, llm.RoleUser, turns[0].Role)
	assert.Equal(t, "what's the weather", turns[0].Content)
	assert.Equal(t, llm.RoleAssistant, turns[1].Role)
	assert.Equal(t, llm.RoleTool, turns[2].Role)
	assert.Equal(t, "call-1", turns[2].ToolCallID)

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "user lives in Lisbon", notes[0].Text)
}

func TestAppendToUnknownKey(t *testing.T) {
	m := testManager(t, t.TempDir())

	err := m.AppendTurn("telegram:404", llm.RoleUser, "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBuildContextNotesLeadAsSystem(t *testing.T) {
	m := testManager(t, t.TempDir())
	key := "telegram:1"

	_, err := m.GetOrCreate(key)
	require.NoError(t, err)
	require.NoError(t, m.AddMemoryNote(key, "prefers metric units"))
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, "how far is the moon"))

	msgs, err := m.BuildContext(key, 10000)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "prefers metric units")
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
}

func TestBuildContextTrimsOldestFirst(t *testing.T) {
	m := testManager(t, t.TempDir())
	key := "telegram:1"

	_, err := m.GetOrCreate(key)
	require.NoError(t, err)

	old := strings.Repeat("a", 100)
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, old))
	require.NoError(t, m.AppendTurn(key, llm.RoleAssistant, strings.Repeat("b", 100)))
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, "latest question"))

	msgs, err := m.BuildContext(key, 120)
	require.NoError(t, err)

	// The oldest turn goes first; the most recent is always kept.
	for _, msg := range msgs {
		assert.NotEqual(t, old, msg.Content)
	}
	require.NotEmpty(t, msgs)
	assert.Equal(t, "latest question", msgs[len(msgs)-1].Content)
}

func TestBuildContextKeepsMostRecentOverBudget(t *testing.T) {
	m := testManager(t, t.TempDir())
	key := "telegram:1"

	_, err := m.GetOrCreate(key)
	require.NoError(t, err)

	huge := strings.Repeat("x", 500)
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, huge))

	msgs, err := m.BuildContext(key, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, huge, msgs[0].Content)
}

func TestSweepArchivesIdleSessions(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, dir)
	key := "telegram:1"

	_, err := m.GetOrCreate(key)
	require.NoError(t, err)
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, "hello"))
	assert.Equal(t, 1, m.ActiveCount())

	archived := m.Sweep(time.Now().Add(31 * time.Minute))
	assert.Equal(t, 1, archived)
	assert.Equal(t, 0, m.ActiveCount())

	// The log survives archival.
	_, err = os.Stat(filepath.Join(dir, fileNameForKey(key)))
	require.NoError(t, err)

	// Appends to an archived key fail until the key is revived.
	assert.ErrorIs(t, m.AppendTurn(key, llm.RoleUser, "again"), ErrSessionNotFound)

	s, err := m.GetOrCreate(key)
	require.NoError(t, err)
	require.Len(t, s.Turns(), 1)
	assert.Equal(t, "hello", s.Turns()[0].Content)
}

func TestResetStartsEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, dir)
	key := "telegram:1"

	_, err := m.GetOrCreate(key)
	require.NoError(t, err)
	require.NoError(t, m.AppendTurn(key, llm.RoleUser, "hello"))
	require.NoError(t, m.AddMemoryNote(key, "a fact"))

	require.NoError(t, m.Reset(key))
	assert.Equal(t, 0, m.ActiveCount())

	// The key starts over with nothing, turns and notes included.
	s, err := m.GetOrCreate(key)
	require.NoError(t, err)
	assert.Empty(t, s.Turns())
	assert.Empty(t, s.Notes())

	// The rotated log stays on disk next to the fresh one.
	entries, err := filepath.Glob(filepath.Join(dir, fileNameForKey(key)+".*"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResetUnknownKeyIsNoop(t *testing.T) {
	m := testManager(t, t.TempDir())
	assert.NoError(t, m.Reset("telegram:404"))
}

func TestSweepKeepsRecentSessions(t *testing.T) {
	m := testManager(t, t.TempDir())

	_, err := m.GetOrCreate("telegram:1")
	require.NoError(t, err)
	require.NoError(t, m.AppendTurn("telegram:1", llm.RoleUser, "hi"))

	archived := m.Sweep(time.Now().Add(time.Minute))
	assert.Equal(t, 0, archived)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	key := "telegram:1"
	path := filepath.Join(dir, fileNameForKey(key))

	content := `{"kind":"turn","role":"user","content":"first","timestamp":"2026-01-02T15:04:05Z"}
this is not json
{"kind":"note","note":"a fact","timestamp":"2026-01-02T15:04:06Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m := testManager(t, dir)
	s, err := m.GetOrCreate(key)
	require.NoError(t, err)

	require.Len(t, s.Turns(), 1)
	assert.Equal(t, "first", s.Turns()[0].Content)
	require.Len(t, s.Notes(), 1)
	assert.Equal(t, "a fact", s.Notes()[0].Text)
}

func TestFileNameForKey(t *testing.T) {
	assert.Equal(t, "telegram_42.jsonl", fileNameForKey("telegram:42"))
	assert.Equal(t, "a_b_c.d-e.jsonl", fileNameForKey("a/b:c.d-e"))
}
