// Package buildconfig exposes the version stamped into binaries at link time:
//
//	go build -ldflags "-X github.com/FlexMeasures/flexmeasures/internal/buildconfig.version=v0.4.0 \
//	  -X github.com/FlexMeasures/flexmeasures/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String renders the version with its commit, e.g. "v0.4.0 (3f2a9c1)".
func String() string {
	return version + " (" + commit + ")"
}

// VersionInfo is the version block served by the metrics endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
