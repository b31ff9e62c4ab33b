package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuild(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	t.Run("build info fills unset values", func(t *testing.T) {
		info := Info{Version: "dev"}
		info.fillFromBuild(bi)

		assert.Equal(t, "v0.3.1", info.Version)
		assert.Equal(t, "0123456789abcdef", info.CommitHash)
		assert.Equal(t, "2026-03-01T12:00:00Z", info.BuildTime)
		assert.True(t, info.Modified)
		assert.Equal(t, "topclients v0.3.1 (commit 0123456+dirty, built 2026-03-01T12:00:00Z)", info.String())
	})

	t.Run("ldflags win", func(t *testing.T) {
		info := Info{Version: "v1.0.0", CommitHash: "feedface", BuildTime: "yesterday"}
		info.fillFromBuild(bi)

		assert.Equal(t, "v1.0.0", info.Version)
		assert.Equal(t, "feedface", info.CommitHash)
		assert.Equal(t, "yesterday", info.BuildTime)
	})

	t.Run("devel main version is ignored", func(t *testing.T) {
		info := Info{Version: "dev"}
		info.fillFromBuild(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
		assert.Equal(t, "dev", info.Version)
	})
}

func TestGetNeverReturnsBlanks(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.CommitHash)
	assert.NotEmpty(t, info.BuildTime)
	assert.Contains(t, info.Platform, "/")
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", Info{CommitHash: "abc"}.Short())
	assert.Equal(t, "1234567", Info{CommitHash: "1234567890"}.Short())
}
