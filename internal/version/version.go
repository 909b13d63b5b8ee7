package version

// Version is the service version, overridden at build time with
// -ldflags "-X github.com/hrygo/tensai/internal/version.Version=x.y.z".
var Version = "0.1.0"

// DevVersion is reported by development builds.
var DevVersion = "0.1.0-dev"

// GetCurrentVersion returns the version for the given mode.
func GetCurrentVersion(mode string) string {
	if mode == "development" {
		return DevVersion
	}
	return Version
}
