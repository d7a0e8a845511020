// Package version reports the build stamped into a binary
package version

// BuildInfo holds version information about a build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information for service
// version, commit and date are set with -ldflags "-X turnstile/internal/platform/version.version=v0.1.0"
func Info(service string) BuildInfo {
	return BuildInfo{
		Service: service,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
