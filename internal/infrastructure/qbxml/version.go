package qbxml

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a qbXML protocol version
type Version struct {
	Major int
	Minor int
}

// DefaultVersion is used when no version is configured
var DefaultVersion = Version{Major: 13, Minor: 0}

// ParseVersion parses "13", "13.0" or " 13.0 "
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("qbxml: empty version")
	}
	majorText, minorText, hasMinor := strings.Cut(s, ".")
	major, err := strconv.Atoi(strings.TrimSpace(majorText))
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("qbxml: invalid version %q", s)
	}
	v := Version{Major: major}
	if hasMinor {
		minor, err := strconv.Atoi(strings.TrimSpace(minorText))
		if err != nil || minor < 0 {
			return Version{}, fmt.Errorf("qbxml: invalid version %q", s)
		}
		v.Minor = minor
	}
	return v, nil
}

// String renders the version as "major.minor"
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether the major version is at least major
func (v Version) AtLeast(major int) bool {
	return v.Major >= major
}
