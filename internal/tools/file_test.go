package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileTool(t *testing.T) (*FileTool, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := NewPathGuard(root)
	require.NoError(t, err)
	return NewFileTool(guard), root
}

func TestFileWriteReadList(t *testing.T) {
	tool, root := testFileTool(t)
	ctx := context.Background()

	out, err := tool.Execute(ctx, `{"action":"write","path":"notes/today.txt","content":"buy milk"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 8 bytes")

	data, err := os.ReadFile(filepath.Join(root, "notes", "today.txt"))
	require.NoError(t, err)
	assert.Equal(t, "buy milk", string(data))

	out, err = tool.Execute(ctx, `{"action":"read","path":"notes/today.txt"}`)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", out)

	out, err = tool.Execute(ctx, `{"action":"list","path":"."}`)
	require.NoError(t, err)
	assert.Equal(t, "notes/", out)
}

func TestFileListEmptyDirectory(t *testing.T) {
	tool, _ := testFileTool(t)

	out, err := tool.Execute(context.Background(), `{"action":"list","path":"."}`)
	require.NoError(t, err)
	assert.Equal(t, "(empty directory)", out)
}

func TestFileRejectsEscapes(t *testing.T) {
	tool, _ := testFileTool(t)
	ctx := context.Background()

	_, err := tool.Execute(ctx, `{"action":"read","path":"../secrets.txt"}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorValidationFailed, te.Kind)

	_, err = tool.Execute(ctx, `{"action":"write","path":"/etc/hosts","content":"x"}`)
	assert.Error(t, err)
}

func TestFileReadMissing(t *testing.T) {
	tool, _ := testFileTool(t)

	_, err := tool.Execute(context.Background(), `{"action":"read","path":"nope.txt"}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorExecutionFailed, te.Kind)
}

func TestFileUnknownAction(t *testing.T) {
	tool, _ := testFileTool(t)

	_, err := tool.Execute(context.Background(), `{"action":"delete","path":"x"}`)
	assert.Error(t, err)
}
