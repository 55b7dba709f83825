package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Build information, injected via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var resolved = sync.OnceValue(func() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
	if build, ok := debug.ReadBuildInfo(); ok {
		fillFromBuild(&info, build)
	}
	return info
})

// Get returns the build information. Values not set through ldflags fall back
// to the module version and VCS stamps recorded by the Go toolchain.
func Get() Info {
	return resolved()
}

func fillFromBuild(info *Info, build *debug.BuildInfo) {
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortRevision(setting.Value)
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = setting.Value
			}
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// UserAgent is sent by the viewer and producer HTTP clients.
func UserAgent(component string) string {
	info := Get()
	return fmt.Sprintf("tilecast-%s/%s (%s)", component, info.Version, info.Commit)
}
