// Package version holds build-time version information.
package version

import "fmt"

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetInfo records version information injected at build time.
func SetInfo(v, bt, gc string) {
	if v != "" {
		version = v
	}
	if bt != "" {
		buildTime = bt
	}
	if gc != "" {
		gitCommit = gc
	}
}

// Version returns the application version.
func Version() string { return version }

// String returns a human-readable version line.
func String() string {
	return fmt.Sprintf("omnibot %s (built %s, commit %s)", version, buildTime, gitCommit)
}
