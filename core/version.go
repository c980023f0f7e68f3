package core

import "fmt"

// Build metadata, injected with:
//
//	go build -ldflags "-X realtime_dashboard/core.Version=$(git describe --tags --always)" .
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionString returns a one-line description of the build.
func VersionString() string {
	return fmt.Sprintf("dashboard %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
