// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag of the stockalert binary.
	Version = "dev"
	// Commit is the source revision.
	Commit = "unknown"
	// BuildDate is set by the release pipeline.
	BuildDate = "unknown"
)

// String renders the metadata for the version subcommand.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}

// UserAgent identifies outbound quote requests.
func UserAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (compatible; stockalert/%s)", Version)
}
