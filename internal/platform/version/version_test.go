package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestFillFromBuild(t *testing.T) {
	info := Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
	fillFromBuild(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		},
	})

	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildTime)
}

func TestFillFromBuild_LdflagsWin(t *testing.T) {
	info := Info{Version: "v2.0.0", Commit: "feedbee", BuildTime: "yesterday"}
	fillFromBuild(&info, &debug.BuildInfo{
		Main:     debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
	})

	assert.Equal(t, Info{Version: "v2.0.0", Commit: "feedbee", BuildTime: "yesterday"}, info)
}

func TestFillFromBuild_DevelKeepsDev(t *testing.T) {
	info := Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
	fillFromBuild(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.Commit)
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent("viewer")
	assert.True(t, strings.HasPrefix(ua, "tilecast-viewer/"), ua)
	assert.Contains(t, ua, Get().Commit)
}
