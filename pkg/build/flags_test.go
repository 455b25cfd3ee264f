// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2026-10-01", "abcdef123", "v0.3.0", "BuildName is required"},
		{"Missing BuildTime", "soundloc", "", "abcdef123", "v0.3.0", "BuildTime is required"},
		{"Missing BuildCommit", "soundloc", "2026-10-01", "", "v0.3.0", "BuildCommit is required"},
		{"Missing BuildVersion", "soundloc", "2026-10-01", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "soundloc", "2026-10-01", "abcdef123", "v0.3.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Initialize() expected error, got nil")
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				if buildFlags.Version != "dev" {
					t.Errorf("defaults overwritten on error: %+v", buildFlags)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName || buildFlags.Version != tt.buildVer ||
				buildFlags.Commit != tt.buildCommit || buildFlags.Time != tt.buildTime {
				t.Errorf("buildFlags = %+v, want values from ldflags", buildFlags)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	buildFlags = &ldFlags{Name: "soundloc", Time: "2026-10-01", Commit: "abc", Version: "v0.3.0"}

	got := GetBuildFlags().VersionString()
	want := "v0.3.0 (commit abc, built 2026-10-01)"
	if got != want {
		t.Errorf("VersionString() = %q, want %q", got, want)
	}
}
