package config

// Set at link time:
//
//	go build -ldflags "-X github.com/satyaLM/override-api/internal/config.version=1.0.0 \
//	    -X github.com/satyaLM/override-api/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X github.com/satyaLM/override-api/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "1.0.0"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
