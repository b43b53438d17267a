// Package version carries build metadata set through -ldflags -X.
package version

import "fmt"

var (
	// Version is the release of the spectrum tool
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the health endpoint.
func String() string {
	return fmt.Sprintf("spectrum %s (%s, built %s)", Version, GitSHA, BuildTime)
}
