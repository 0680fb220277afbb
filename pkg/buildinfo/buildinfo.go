// Package buildinfo provides build metadata injected via ldflags at compile time.
package buildinfo

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a formatted build info string.
func String() string {
	return fmt.Sprintf("provisionwatch %s (commit: %s, built: %s)",
		Version, GitCommit, BuildDate)
}
