// SPDX-License-Identifier: MIT
//
// Package build carries the metadata stamped into the soundloc binary at
// link time: name, build timestamp, commit and semantic version.
//
//	go build -ldflags "-X soundloc/pkg/build.buildName=soundloc \
//	  -X soundloc/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without ldflags, in which case Initialize reports
// the first missing field and the "dev" defaults stay in place.
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

// Description is the one-line summary shown by the CLI.
const Description = "Acoustic source localization from synchronized microphone recordings"

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:    "soundloc",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize validates the ldflags variables and copies them into the
// build information. On error the development defaults are kept so the
// binary stays usable.
func Initialize() error {
	if buildName == "" {
		return errors.New("BuildName is required")
	}
	if buildTime == "" {
		return errors.New("BuildTime is required")
	}
	if buildCommit == "" {
		return errors.New("BuildCommit is required")
	}
	if buildVersion == "" {
		return errors.New("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// VersionString formats the version line printed by --version.
func (f *ldFlags) VersionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}
