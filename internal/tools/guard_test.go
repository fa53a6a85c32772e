package tools

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathGuardResolve(t *testing.T) {
	root := t.TempDir()
	guard, err := NewPathGuard(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative inside", path: "notes.txt", want: filepath.Join(root, "notes.txt")},
		{name: "nested relative", path: "a/b/c.txt", want: filepath.Join(root, "a", "b", "c.txt")},
		{name: "root itself", path: ".", want: root},
		{name: "absolute inside", path: filepath.Join(root, "x.txt"), want: filepath.Join(root, "x.txt")},
		{name: "dotdot escape", path: "../outside.txt", wantErr: true},
		{name: "hidden dotdot escape", path: "a/../../outside.txt", wantErr: true},
		{name: "absolute escape", path: "/etc/passwd", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Resolve(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				te, ok := AsToolError(err)
				require.True(t, ok)
				assert.Equal(t, ErrorValidationFailed, te.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandGuardValidate(t *testing.T) {
	guard := NewCommandGuard([]string{"ls", "echo"})

	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{name: "allowed plain", command: "ls -la"},
		{name: "allowed with args", command: "echo hello world"},
		{name: "not on allow-list", command: "rm -rf /", wantErr: true},
		{name: "empty", command: "   ", wantErr: true},
		{name: "chained with semicolon", command: "ls; rm -rf /", wantErr: true},
		{name: "chained with and", command: "ls && rm x", wantErr: true},
		{name: "piped", command: "ls | grep x", wantErr: true},
		{name: "backtick substitution", command: "echo `whoami`", wantErr: true},
		{name: "dollar substitution", command: "echo $(whoami)", wantErr: true},
		{name: "variable expansion", command: "echo $HOME", wantErr: true},
		{name: "redirection", command: "echo x > /etc/passwd", wantErr: true},
		{name: "embedded newline", command: "ls\nrm x", wantErr: true},
		{name: "path traversal argument", command: "ls ../../etc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Validate(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommandGuardEmptyAllowListDeniesEverything(t *testing.T) {
	guard := NewCommandGuard(nil)
	assert.Error(t, guard.Validate("ls"))
	assert.Error(t, guard.Validate("echo hi"))
}
