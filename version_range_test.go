// version_range_test.go: tests for bracket version range parsing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionRange_Containment(t *testing.T) {
	testCases := []struct {
		rangeExpr string
		version   string
		contained bool
	}{
		// Lower-inclusive, upper-exclusive.
		{"[2.0.0,3.0.0)", "2.0.0", true},
		{"[2.0.0,3.0.0)", "2.5.1", true},
		{"[2.0.0,3.0.0)", "3.0.0", false},
		{"[2.0.0,3.0.0)", "1.9.9", false},

		// Fully inclusive.
		{"[2.0.0,3.0.0]", "3.0.0", true},

		// Lower-exclusive.
		{"(2.0.0,3.0.0]", "2.0.0", false},
		{"(2.0.0,3.0.0]", "2.0.1", true},

		// Open bounds.
		{"[,]", "0.0.1", true},
		{"[,]", "99.0.0", true},
		{"[2.0.0,)", "2.0.0", true},
		{"[2.0.0,)", "99.0.0", true},
		{"[2.0.0,)", "1.0.0", false},
		{"(,3.0.0]", "3.0.0", true},
		{"(,3.0.0]", "3.0.1", false},

		// Degenerate single-version range.
		{"[2.0.0,2.0.0]", "2.0.0", true},
		{"[2.0.0,2.0.0]", "2.0.1", false},
	}

	for _, tc := range testCases {
		t.Run(tc.rangeExpr+"_"+tc.version, func(t *testing.T) {
			vr, err := ParseVersionRange(tc.rangeExpr)
			require.NoError(t, err)
			assert.Equal(t, tc.contained, vr.ContainsRaw(tc.version))
		})
	}
}

func TestParseVersionRange_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"2.0.0",
		"[2.0.0]",
		"2.0.0,3.0.0",
		"[2.0.0,3.0.0",
		"{2.0.0,3.0.0}",
		"[not-a-version,3.0.0)",
		"[2.0.0,also-bad)",
		"[3.0.0,2.0.0)", // inverted bounds
	}

	for _, expr := range invalid {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseVersionRange(expr)
			assert.Error(t, err)
		})
	}
}

func TestVersionRange_WhitespaceTolerated(t *testing.T) {
	vr, err := ParseVersionRange("  [ 2.0.0 , 3.0.0 ) ")
	require.NoError(t, err)
	assert.True(t, vr.ContainsRaw("2.5.0"))
	assert.False(t, vr.ContainsRaw("3.0.0"))
}

func TestVersionRange_UnparsableVersionOutsideRange(t *testing.T) {
	vr, err := ParseVersionRange("[,]")
	require.NoError(t, err)
	assert.False(t, vr.ContainsRaw("not-a-version"))
}

func TestVersionRange_String(t *testing.T) {
	vr, err := ParseVersionRange("[2.0.0,3.0.0)")
	require.NoError(t, err)
	assert.Equal(t, "[2.0.0,3.0.0)", vr.String())
}
