// Package version provides build information for progcap binaries
package version

// BuildInfo holds version information about a build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Set via -ldflags "-X 'progcap/internal/core/version.version=v0.1.0'
// -X 'progcap/internal/core/version.commit=abcd' -X 'progcap/internal/core/version.date=2026-10-01'"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	service = "progcap"
)

// SetService names the running binary; mains call it once at startup
func SetService(name string) {
	if name != "" {
		service = name
	}
}

// Info returns the build information
func Info() BuildInfo {
	return BuildInfo{
		Service: service,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}
