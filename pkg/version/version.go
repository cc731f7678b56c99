// Package version derives the application version from build metadata.
// An -ldflags override wins, then the VCS revision stamped by the Go
// toolchain, then "dev" for test binaries and non-git builds.
package version

import "runtime/debug"

// AppName appears in version strings, user agents, and log fields.
const AppName = "faultmaven"

// gitCommitOverride is injected with -ldflags for container builds that
// have no .git directory to stamp from.
var gitCommitOverride string

// GitCommit is the short (8-char) commit hash, or "dev".
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "faultmaven/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
