// Package misc provides program identification helpers.
package misc

import (
	"runtime/debug"
)

const appName = "cfx"

// set by the linker during release builds, otherwise derived from build info
var (
	version = ""
	gitHash = ""
)

// GetAppName returns short program name used for logs, reports and temporary files.
func GetAppName() string {
	return appName
}

// GetVersion returns program version.
func GetVersion() string {
	if len(version) > 0 {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && len(bi.Main.Version) > 0 {
		return bi.Main.Version
	}
	return "unknown"
}

// GetGitHash returns VCS revision program was built from.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
