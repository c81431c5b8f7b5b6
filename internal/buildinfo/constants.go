package buildinfo

import "fmt"

// These variables will be set at build time using ldflags, e.g.
//
//	go build -ldflags "-X payagent/internal/buildinfo.Version=1.2.0 -X payagent/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = ""
)

// String renders the build information for `payagent version`.
func String() string {
	if BuildDate == "" {
		return fmt.Sprintf("%s (commit %s)", Version, Commit)
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent is sent on every API request.
func UserAgent() string {
	return "payagent-cli/" + Version
}
