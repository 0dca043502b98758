package contracts

import (
	"runtime"
	"runtime/debug"
)

const (
	Version = "0.3.0"

	// ReportSchemaVersion changes whenever the JSON shape of domain.Report
	// changes incompatibly.
	ReportSchemaVersion = "v1"
)

// Overridden with -ldflags "-X ebidash/pkg/contracts.GitCommit=...". Left
// empty they fall back to the VCS stamp the go tool embeds.
var (
	GitCommit = ""
	BuildTime = ""
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version      string `json:"version"`
	ReportSchema string `json:"report_schema"`
	GitCommit    string `json:"git_commit"`
	BuildTime    string `json:"build_time"`
	DirtyTree    bool   `json:"dirty_tree,omitempty"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
}

// GetVersionInfo reports the binary's version, preferring ldflags values over
// the embedded VCS stamp.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:      Version,
		ReportSchema: ReportSchemaVersion,
		GitCommit:    GitCommit,
		BuildTime:    BuildTime,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.DirtyTree = s.Value == "true"
			}
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}
