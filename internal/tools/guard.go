package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wasilibs/go-re2"
)

// injectionPatterns match shell constructs that chain, substitute, or
// redirect — the vectors behind the command-injection reports against the
// shell and filesystem tools. re2 keeps matching linear-time on untrusted,
// model-generated input.
var injectionPatterns = []*re2.Regexp{
	// chaining: ;  &&  ||  background &
	re2.MustCompile(`[;&|]`),
	// substitution: `cmd`, $(cmd), ${var}, $VAR
	re2.MustCompile("[`$](?:[({]|[a-zA-Z_])"),
	// redirection
	re2.MustCompile(`[<>]`),
	// embedded newlines split commands
	re2.MustCompile(`\n|\r`),
}

// PathGuard confines tool file access to a workspace root.
type PathGuard struct {
	root string
}

// NewPathGuard creates a guard rooted at root. The root is cleaned and made
// absolute once so later checks are pure string work.
func NewPathGuard(root string) (*PathGuard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	return &PathGuard{root: filepath.Clean(abs)}, nil
}

// Root returns the confined root directory.
func (g *PathGuard) Root() string { return g.root }

// Resolve maps a tool-supplied path inside the workspace root. Relative
// paths are joined to the root; the cleaned result must still be under the
// root, which rejects both ".." traversal and absolute escapes.
func (g *PathGuard) Resolve(path string) (string, error) {
	if path == "" {
		return "", NewValidationError(fmt.Errorf("path cannot be empty"))
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(g.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if resolved != g.root && !strings.HasPrefix(resolved, g.root+string(filepath.Separator)) {
		return "", NewValidationError(fmt.Errorf("path escapes workspace root: %s", path))
	}
	return resolved, nil
}

// CommandGuard validates commands before they reach a process spawn. A
// command passes only when it is free of shell metacharacters and its first
// word is on the allow-list. An empty allow-list denies everything: running
// commands is opt-in per deployment.
type CommandGuard struct {
	allowed []string
}

// NewCommandGuard creates a guard with the given allowed command names.
func NewCommandGuard(allowed []string) *CommandGuard {
	return &CommandGuard{allowed: allowed}
}

// Validate checks a full command line.
func (g *CommandGuard) Validate(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return NewValidationError(fmt.Errorf("command cannot be empty"))
	}

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(command) {
			return NewValidationError(fmt.Errorf("command contains shell metacharacters"))
		}
	}

	fields := strings.Fields(command)
	name := fields[0]
	for _, arg := range fields {
		if strings.Contains(arg, "..") {
			return NewValidationError(fmt.Errorf("argument contains path traversal: %s", arg))
		}
	}

	for _, a := range g.allowed {
		if name == a {
			return nil
		}
	}
	return NewValidationError(fmt.Errorf("command not on allow-list: %s", name))
}
