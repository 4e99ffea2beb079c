// Package version defines Observer CLI version information and build metadata.
package version

import (
	"fmt"
	"strings"
)

// CommitHash stores the git commit hash of this build.
//
// This should be set using -ldflags during compilation.
var CommitHash string

const (
	appMajor uint = 1
	appMinor uint = 0
	appPatch uint = 0
)

// Version returns the application version string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// RichVersion returns the version along with the commit hash when one was
// baked into the build.
func RichVersion() string {
	hash := strings.TrimSpace(CommitHash)
	if hash == "" {
		return Version()
	}
	return fmt.Sprintf("%s commit_hash=%s", Version(), hash)
}
