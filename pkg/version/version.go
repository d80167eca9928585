// Package version provides build information and the snapshot format
// version used by persisted projects.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// SnapshotFormat is the project snapshot format written by this build.
// Readers accept any snapshot with the same major version.
const SnapshotFormat = "1.0"

// Version and Commit are set at build time with
// -ldflags "-X github.com/pinwise/pinwise-go/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

// FormatVersion represents a parsed "major.minor" format version.
type FormatVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (FormatVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return FormatVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return FormatVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return FormatVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return FormatVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v FormatVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v FormatVersion) Compatible(other FormatVersion) bool {
	return v.Major == other.Major
}

// CanRead reports whether a build writing SnapshotFormat can read a
// snapshot written in format s.
func CanRead(s string) error {
	got, err := Parse(s)
	if err != nil {
		return err
	}
	current, _ := Parse(SnapshotFormat)
	if !current.Compatible(got) {
		return fmt.Errorf("snapshot format %s is not readable by format %s", got, current)
	}
	return nil
}

// String returns a one-line description of the build.
func String() string {
	commit := Commit
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	if commit == "" {
		return fmt.Sprintf("pinwise %s (snapshot format %s)", Version, SnapshotFormat)
	}
	return fmt.Sprintf("pinwise %s-%s (snapshot format %s)", Version, commit, SnapshotFormat)
}
