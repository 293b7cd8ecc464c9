// harness_directive.go: declarative directives driving harness runs
//
// A directive asserts that verification must pass (or must fail) for every
// version of a target library inside a declared range. Directive files are
// JSON or YAML; one file may carry many directives.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"encoding/json"
	"os"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Directive declares one cross-version verification assertion.
type Directive struct {
	// Group and Module identify the target library in the repository.
	Group  string `json:"group" yaml:"group"`
	Module string `json:"module" yaml:"module"`

	// VersionRange is bracket interval notation, e.g. "[2.0,3.0)".
	VersionRange string `json:"version_range" yaml:"version_range"`

	// AssertPass declares the expected verdict for every version in range:
	// true for a pass-range, false for a fail-range.
	AssertPass bool `json:"assert_pass" yaml:"assert_pass"`

	// SkipVersions are excluded from the matrix entirely (known-broken
	// artifacts, unreleasable versions).
	SkipVersions []string `json:"skip_versions,omitempty" yaml:"skip_versions,omitempty"`

	// ExtraDeps name additional artifacts merged into each candidate
	// context, as "group:module:version" coordinates.
	ExtraDeps []string `json:"extra_deps,omitempty" yaml:"extra_deps,omitempty"`

	// ExcludedDeps are dotted name prefixes removed from each candidate
	// context before verification.
	ExcludedDeps []string `json:"excluded_deps,omitempty" yaml:"excluded_deps,omitempty"`
}

// Validate checks the directive for structural problems and parses its
// range.
func (d *Directive) Validate() (*VersionRange, error) {
	if d.Group == "" || d.Module == "" {
		return nil, NewInvalidDirectiveError("group and module are required")
	}
	if d.VersionRange == "" {
		return nil, NewInvalidDirectiveError("version_range is required")
	}
	return ParseVersionRange(d.VersionRange)
}

// skipped reports whether a version is on the directive's skip list.
func (d *Directive) skipped(version string) bool {
	for _, s := range d.SkipVersions {
		if s == version {
			return true
		}
	}
	return false
}

// directiveFile is the on-disk shape of a directive file.
type directiveFile struct {
	Directives []Directive `json:"directives" yaml:"directives"`
}

// LoadDirectives reads a directive file with format detection.
func LoadDirectives(path string) ([]Directive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewInvalidDirectiveError("cannot read directive file: " + err.Error())
	}

	var file directiveFile
	switch argus.DetectFormat(path) {
	case argus.FormatYAML:
		err = yaml.Unmarshal(raw, &file)
	default:
		err = json.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, NewInvalidDirectiveError("cannot parse directive file: " + err.Error())
	}
	if len(file.Directives) == 0 {
		return nil, NewInvalidDirectiveError("directive file declares no directives")
	}

	for i := range file.Directives {
		if _, err := file.Directives[i].Validate(); err != nil {
			return nil, err
		}
	}
	return file.Directives, nil
}
