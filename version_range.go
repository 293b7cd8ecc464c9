// version_range.go: bracket version range syntax for harness directives
//
// Directives declare ranges in the interval notation used by dependency
// managers: [lower,upper) is lower-inclusive and upper-exclusive, (a,b] the
// reverse, and either bound may be omitted for an open range, so "[,]"
// matches every version. Bounds are semantic versions.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionRange is one parsed bracket range.
type VersionRange struct {
	raw            string
	lower          *semver.Version
	lowerInclusive bool
	upper          *semver.Version
	upperInclusive bool
}

// ParseVersionRange parses bracket interval notation into a range.
func ParseVersionRange(raw string) (*VersionRange, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 3 {
		return nil, NewInvalidVersionRangeError(raw, nil)
	}

	var lowerInclusive, upperInclusive bool
	switch trimmed[0] {
	case '[':
		lowerInclusive = true
	case '(':
		lowerInclusive = false
	default:
		return nil, NewInvalidVersionRangeError(raw, nil)
	}
	switch trimmed[len(trimmed)-1] {
	case ']':
		upperInclusive = true
	case ')':
		upperInclusive = false
	default:
		return nil, NewInvalidVersionRangeError(raw, nil)
	}

	body := trimmed[1 : len(trimmed)-1]
	lowerText, upperText, found := strings.Cut(body, ",")
	if !found {
		return nil, NewInvalidVersionRangeError(raw, nil)
	}

	vr := &VersionRange{
		raw:            trimmed,
		lowerInclusive: lowerInclusive,
		upperInclusive: upperInclusive,
	}

	if lowerText = strings.TrimSpace(lowerText); lowerText != "" {
		lower, err := semver.NewVersion(lowerText)
		if err != nil {
			return nil, NewInvalidVersionRangeError(raw, err)
		}
		vr.lower = lower
	}
	if upperText = strings.TrimSpace(upperText); upperText != "" {
		upper, err := semver.NewVersion(upperText)
		if err != nil {
			return nil, NewInvalidVersionRangeError(raw, err)
		}
		vr.upper = upper
	}

	if vr.lower != nil && vr.upper != nil && vr.lower.GreaterThan(vr.upper) {
		return nil, NewInvalidVersionRangeError(raw, nil)
	}
	return vr, nil
}

// Contains reports whether a version falls inside the range.
func (r *VersionRange) Contains(v *semver.Version) bool {
	if r.lower != nil {
		if v.LessThan(r.lower) {
			return false
		}
		if !r.lowerInclusive && v.Equal(r.lower) {
			return false
		}
	}
	if r.upper != nil {
		if v.GreaterThan(r.upper) {
			return false
		}
		if !r.upperInclusive && v.Equal(r.upper) {
			return false
		}
	}
	return true
}

// ContainsRaw parses a version string and reports containment. Unparsable
// versions are outside every range.
func (r *VersionRange) ContainsRaw(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return r.Contains(v)
}

// String returns the raw bracket notation.
func (r *VersionRange) String() string {
	return r.raw
}
