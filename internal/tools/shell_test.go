package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShellTool(t *testing.T, allowed []string) *ShellTool {
	t.Helper()
	paths, err := NewPathGuard(t.TempDir())
	require.NoError(t, err)
	return NewShellTool(NewCommandGuard(allowed), paths, 5*time.Second)
}

func TestShellRunsAllowedCommand(t *testing.T) {
	tool := testShellTool(t, []string{"echo"})

	out, err := tool.Execute(context.Background(), `{"command":"echo hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestShellEmptyOutputPlaceholder(t *testing.T) {
	tool := testShellTool(t, []string{"true"})

	out, err := tool.Execute(context.Background(), `{"command":"true"}`)
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out)
}

func TestShellRejectsDisallowedAndUnsafe(t *testing.T) {
	tool := testShellTool(t, []string{"echo"})
	ctx := context.Background()

	_, err := tool.Execute(ctx, `{"command":"ls"}`)
	assert.Error(t, err)

	_, err = tool.Execute(ctx, `{"command":"echo hi; rm -rf /"}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorValidationFailed, te.Kind)
}

func TestShellFailedCommand(t *testing.T) {
	tool := testShellTool(t, []string{"false"})

	_, err := tool.Execute(context.Background(), `{"command":"false"}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorExecutionFailed, te.Kind)
}
