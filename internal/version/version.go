// Package version describes the plugin version compiled into the current
// build and the packed integer form stored alongside persisted settings.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// Version is the build version in "Major.Minor.Patch.Tweak" form. It is
	// typically injected via -ldflags "-X .../internal/version.Version=...".
	Version = "0.12.0.0"

	// GitCommit is the short commit hash of the build, injected via -ldflags.
	GitCommit = "unknown"
)

// compatMask keeps the major and minor components of a packed version.
const compatMask uint64 = 0xFFFFFFFF00000000

// ErrInvalidVersion indicates a version string could not be parsed.
var ErrInvalidVersion = errors.New("invalid version")

// Pack combines the four version components into a single integer.
func Pack(major, minor, patch, tweak uint16) uint64 {
	return uint64(major)<<48 | uint64(minor)<<32 | uint64(patch)<<16 | uint64(tweak)
}

// Unpack splits a packed version into its components.
func Unpack(v uint64) (major, minor, patch, tweak uint16) {
	return uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v)
}

// Parse converts a dotted version string with one to four components into
// its packed form. Missing trailing components are zero.
func Parse(raw string) (uint64, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if raw == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("%w: %q has more than four components", ErrInvalidVersion, raw)
	}

	var components [4]uint16
	for i, part := range parts {
		value, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: component %q of %q", ErrInvalidVersion, part, raw)
		}
		components[i] = uint16(value)
	}

	return Pack(components[0], components[1], components[2], components[3]), nil
}

// Format renders a packed version as "a.b.c.d".
func Format(v uint64) string {
	major, minor, patch, tweak := Unpack(v)
	return fmt.Sprintf("%d.%d.%d.%d", major, minor, patch, tweak)
}

// Current returns the packed compiled-in version, or 0 if the build string
// is malformed.
func Current() uint64 {
	v, err := Parse(Version)
	if err != nil {
		return 0
	}
	return v
}

// Compatible reports whether two packed versions share major and minor.
func Compatible(a, b uint64) bool {
	return a&compatMask == b&compatMask
}
