package qbwc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

// NegotiateVersion picks the qbXML version for one request. The client's
// version is used verbatim when its major is below the configured one;
// otherwise the major is capped at the configured major and the minor at the
// lesser of the two minors. A missing or unreadable major uses the
// configured version.
func NegotiateVersion(configured qbxml.Version, major, minor string) qbxml.Version {
	reqMajor, ok := parseNonNegative(major)
	if !ok {
		return configured
	}
	reqMinor, ok := parseNonNegative(minor)
	if !ok {
		reqMinor = 0
	}

	switch {
	case reqMajor < configured.Major:
		return qbxml.Version{Major: reqMajor, Minor: reqMinor}
	case reqMajor > configured.Major:
		return configured
	default:
		return qbxml.Version{Major: configured.Major, Minor: min(configured.Minor, reqMinor)}
	}
}

// requestedVersion renders what the client asked for, for the journal
func requestedVersion(major, minor string) string {
	major, minor = strings.TrimSpace(major), strings.TrimSpace(minor)
	switch {
	case major == "":
		return ""
	case minor == "":
		return major
	default:
		return fmt.Sprintf("%s.%s", major, minor)
	}
}

func parseNonNegative(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDotted parses "2.3.0.198" into its numeric parts. Empty segments are
// skipped; any non-numeric segment makes the whole value unreadable (nil).
func parseDotted(s string) []int {
	var parts []int
	for _, token := range strings.Split(s, ".") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		n, ok := parseNonNegative(token)
		if !ok {
			return nil
		}
		parts = append(parts, n)
	}
	return parts
}

// compareDotted orders dotted versions part by part; a proper prefix sorts first
func compareDotted(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// clientVersionWarning returns the upgrade prompt when version is below
// minimum, and "" when there is no objection or either value is unreadable.
func clientVersionWarning(version, minimum string) string {
	minimum = strings.TrimSpace(minimum)
	if minimum == "" {
		return ""
	}
	current := parseDotted(version)
	floor := parseDotted(minimum)
	if len(current) == 0 || len(floor) == 0 {
		return ""
	}
	if compareDotted(current, floor) < 0 {
		return fmt.Sprintf("W:Please upgrade QuickBooks Web Connector to at least %s.", minimum)
	}
	return ""
}
