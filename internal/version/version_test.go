package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123def456", "2026-01-01T12:00:00Z"
	defer func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	}()

	info := GetInfo()

	if info.Version != "1.0.0" {
		t.Errorf("GetInfo().Version = %v, want 1.0.0", info.Version)
	}
	if info.Commit != "abc123def456" {
		t.Errorf("GetInfo().Commit = %v, want abc123def456", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GetInfo().GoVersion = %v, want %v", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("GetInfo().Platform = %v", info.Platform)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "feedface"},
		{Key: "vcs.time", Value: "2026-02-02T00:00:00Z"},
	}}

	info := Info{Commit: "unknown", Date: "unknown"}
	fillFromBuildInfo(&info, bi)
	if info.Commit != "feedface" || info.Date != "2026-02-02T00:00:00Z" {
		t.Errorf("fillFromBuildInfo() = %+v", info)
	}

	stamped := Info{Commit: "abc", Date: "today"}
	fillFromBuildInfo(&stamped, bi)
	if stamped.Commit != "abc" || stamped.Date != "today" {
		t.Errorf("ldflags values should win, got %+v", stamped)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.2.3",
		Commit:    "abc123def456789",
		Date:      "2026-01-01",
		GoVersion: "go1.25.3",
		Platform:  "linux/amd64",
	}
	got := info.String()
	for _, want := range []string{"autoheal 1.2.3", "(abc123de)", "built 2026-01-01", "go1.25.3", "linux/amd64"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
	if info.Short() != "1.2.3" {
		t.Errorf("Short() = %q", info.Short())
	}
}
