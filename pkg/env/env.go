// Package env holds process-wide build information.
package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

const unset = "unset"

// Set by the CLI at startup; "unset" in tests and library use.
var Version = unset

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", Version) // nolint:errcheck
}

// Records the build version from module and VCS info.
func SetVersionFromBuild() {
	Version = versioninfo.Short()
}

func IsProd() bool {
	return Version != unset
}
