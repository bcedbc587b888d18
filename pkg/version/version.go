// Package version reports the lens-sync build version.
package version

// Set via -ldflags "-X github.com/carverauto/lens-sync/pkg/version.version=..." at build time.
//
//nolint:gochecknoglobals // These are intentionally global for ldflags injection
var (
	version = "dev"
	buildID = "dev"
)

// GetVersion returns the current version.
func GetVersion() string {
	return version
}

// GetBuildID returns the current build ID.
func GetBuildID() string {
	return buildID
}

// GetFullVersion returns version with build ID.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
