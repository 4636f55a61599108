package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service current released version.
// Override at build time:
//
//	go build -ldflags "-X github.com/hrygo/supportdesk/internal/version.Version=v0.3.0"
var Version = "0.1.0"

// DevVersion is the service current development version.
var DevVersion = Version + "-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// SchemaVersion is the storage schema the binary expects.
// Drivers record it after migrating and refuse to open a newer schema.
const SchemaVersion = "0.2.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsValid reports whether v is a semantic version, with or without the v prefix.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > -1
}

// IsVersionGreaterThan returns true if version is greater than target.
func IsVersionGreaterThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > 0
}

// String returns the version string with optional commit hash.
func String() string {
	v := Version
	if GitCommit != "" && GitCommit != "unknown" {
		short := GitCommit
		if len(short) > 8 {
			short = short[:8]
		}
		v = fmt.Sprintf("%s-%s", v, short)
	}
	return v
}
