package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	GOOS      = runtime.GOOS
	GOARCH    = runtime.GOARCH
)

// Short returns "cwbackend/<release>".
func Short() string {
	return "cwbackend/" + Release
}

// Full returns the version string in the format "release (commit)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Short(), GitCommit)
}

// FullWithPlatform returns the version string with platform information.
func FullWithPlatform() string {
	return fmt.Sprintf("%s (commit: %s, %s/%s)", Short(), GitCommit, GOOS, GOARCH)
}

// UserAgent is sent with outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s (%s/%s)", Short(), GOOS, GOARCH)
}
