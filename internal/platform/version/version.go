package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X .../version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns build information. When Commit was not injected it falls back to the VCS
// revision recorded by the Go toolchain.
func Get() Info {
	commit := Commit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	return Info{
		Service:   "svx-sse",
		Version:   Version,
		Commit:    commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s, %s)", i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion)
}
