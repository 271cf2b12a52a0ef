// Package version carries build metadata injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// GitRelease is the release tag, set with -X at build time.
	GitRelease = "dev"
	// GitCommit is the commit hash, set with -X at build time.
	GitCommit = "unknown"
	// GitCommitDate is the commit date, set with -X at build time.
	GitCommitDate = "unknown"
	// GoInfo describes the Go toolchain and platform.
	GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)

// Info is the build metadata printed by `folio version`.
type Info struct {
	Release    string `json:"release"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	Modified   bool   `json:"modified,omitempty"`
	Go         string `json:"go"`
}

var modified bool

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Release:    GitRelease,
		Commit:     GitCommit,
		CommitDate: GitCommitDate,
		Modified:   modified,
		Go:         GoInfo,
	}
}

func init() {
	if GitCommit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			GitCommit = s.Value
		case "vcs.time":
			GitCommitDate = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
}
