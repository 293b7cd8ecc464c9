// reference.go: symbol reference model for injected logic
//
// A symbol reference records one usage site's requirement on a symbol that
// lives outside the extension's own namespace: the target type, the kind of
// use, the member signature for method/field uses, and the minimum
// visibility the usage site relies on. Reference sets are built once per
// injected-logic unit and are immutable afterwards.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"fmt"
	"strings"
)

// Visibility models the standard access ordering public > protected >
// package > private. The zero value is private, the most restrictive level.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityPackage
	VisibilityProtected
	VisibilityPublic
)

// String implements fmt.Stringer.
func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityProtected:
		return "protected"
	case VisibilityPackage:
		return "package"
	case VisibilityPrivate:
		return "private"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// Satisfies reports whether an actual visibility level grants at least the
// required level. A reference requiring public access to a member that is
// only package-visible is not satisfied even though the symbol exists.
func (v Visibility) Satisfies(required Visibility) bool {
	return v >= required
}

// MarshalJSON renders the textual level, keeping descriptors readable.
func (v Visibility) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts the textual levels produced by MarshalJSON.
func (v *Visibility) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "public":
		*v = VisibilityPublic
	case "protected":
		*v = VisibilityProtected
	case "package":
		*v = VisibilityPackage
	case "private", "":
		*v = VisibilityPrivate
	default:
		return fmt.Errorf("unknown visibility %s", string(data))
	}
	return nil
}

// ReferenceKind classifies how injected logic touches an external symbol.
type ReferenceKind int

const (
	// KindTypeUse covers instantiation, casts, and static type touches.
	KindTypeUse ReferenceKind = iota
	// KindMethodCall covers invocations against the static receiver type.
	KindMethodCall
	// KindFieldAccess covers field reads and writes.
	KindFieldAccess
)

// String implements fmt.Stringer.
func (k ReferenceKind) String() string {
	switch k {
	case KindTypeUse:
		return "type-use"
	case KindMethodCall:
		return "method-call"
	case KindFieldAccess:
		return "field-access"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MemberSignature is a method or field signature: the member name plus the
// parameter type names and return type name for methods. Fields carry the
// field type in Returns and no Params.
type MemberSignature struct {
	Name    string   `json:"name"`
	Params  []string `json:"params,omitempty"`
	Returns string   `json:"returns,omitempty"`
}

// String renders name(p1,p2)ret for diagnostics.
func (s MemberSignature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(s.Params, ","))
	b.WriteByte(')')
	b.WriteString(s.Returns)
	return b.String()
}

// SymbolReference records one usage site's requirement on an external symbol.
// It is an immutable value; uniqueness is per usage site, so two references
// to the same symbol from different lines are distinct values with the same
// symbol key.
type SymbolReference struct {
	TargetType         string          `json:"target_type"`
	Kind               ReferenceKind   `json:"kind"`
	Signature          MemberSignature `json:"signature,omitempty"`
	RequiredVisibility Visibility      `json:"required_visibility"`
	SourceUnit         string          `json:"source_unit"`
	SourceLine         int             `json:"source_line"`
}

// SymbolKey identifies the underlying symbol independent of the usage site.
// Verification satisfies a symbol once, not once per site.
func (r SymbolReference) SymbolKey() string {
	switch r.Kind {
	case KindTypeUse:
		return "t:" + r.TargetType
	case KindMethodCall:
		return "m:" + r.TargetType + "#" + r.Signature.Name + "(" + strings.Join(r.Signature.Params, ",") + ")"
	default:
		return "f:" + r.TargetType + "#" + r.Signature.Name
	}
}

// Site renders the usage site for mismatch diagnostics.
func (r SymbolReference) Site() string {
	return fmt.Sprintf("%s:%d", r.SourceUnit, r.SourceLine)
}

// ReferenceSet is the ordered collection of symbol references produced for
// one injected-logic unit and its bundled helpers. It is immutable after
// construction; duplicate references to the same symbol are retained so each
// keeps its own source location.
type ReferenceSet struct {
	refs []SymbolReference
}

// NewReferenceSet builds an immutable reference set from the given
// references, preserving order.
func NewReferenceSet(refs []SymbolReference) *ReferenceSet {
	owned := make([]SymbolReference, len(refs))
	copy(owned, refs)
	return &ReferenceSet{refs: owned}
}

// Len returns the number of recorded references, duplicates included.
func (s *ReferenceSet) Len() int {
	return len(s.refs)
}

// Empty reports whether the set records no references at all. An empty set
// verifies successfully against any context.
func (s *ReferenceSet) Empty() bool {
	return len(s.refs) == 0
}

// References returns a copy of the recorded references in order.
func (s *ReferenceSet) References() []SymbolReference {
	out := make([]SymbolReference, len(s.refs))
	copy(out, s.refs)
	return out
}

// BySymbol groups references by underlying symbol, preserving first-seen
// order of the symbols. Verification iterates this grouping so each symbol
// is resolved once while diagnostics can still name every site.
func (s *ReferenceSet) BySymbol() ([]string, map[string][]SymbolReference) {
	order := make([]string, 0, len(s.refs))
	grouped := make(map[string][]SymbolReference, len(s.refs))
	for _, ref := range s.refs {
		key := ref.SymbolKey()
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], ref)
	}
	return order, grouped
}
