// Package version provides centralized version management for the
// GraphToolKit CLI. The VERSION file in this package is embedded at
// compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionRaw string

// Version is the current version of the toolkit, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}
