// extractor.go: static symbol-reference extraction from compiled units
//
// The extractor scans a unit's operation stream for everything that crosses
// outside the owning extension's namespace, following calls breadth-first
// into helper units that belong to the same extension. Operations staying
// inside the extension recurse instead of emitting a reference, which keeps
// the reference set from swallowing the target library's internals while
// still capturing what the extension transitively needs from outside itself.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"strings"
)

// OperationKind classifies one low-level operation of a compiled unit.
type OperationKind int

const (
	// OpTypeUse covers instantiation, casts, and static type touches.
	OpTypeUse OperationKind = iota
	// OpInvoke covers invocations; the operation carries the static
	// (declared) receiver type, never the runtime type.
	OpInvoke
	// OpFieldRead covers field reads.
	OpFieldRead
	// OpFieldWrite covers field writes.
	OpFieldWrite
)

// Operation is one entry of a unit's operation stream.
type Operation struct {
	Kind       OperationKind
	TargetType string
	Member     MemberSignature
	Line       int
}

// OperationReader supplies the operation stream of a compiled unit. It is
// the pluggable seam between the extractor and any particular compiled
// representation: the same extraction and verification logic works over any
// reader implementation.
type OperationReader interface {
	ReadOperations(unitName string) ([]Operation, error)
}

// SupertypeResolver is optionally implemented by operation readers that know
// the declared supertype of a unit. When available, references from a unit
// to its own supertype may rely on protected visibility.
type SupertypeResolver interface {
	Supertype(unitName string) (string, bool)
}

// NamespaceSet declares which dotted names belong to an extension itself.
// Extraction recurses into owned units and emits references for everything
// else.
type NamespaceSet struct {
	prefixes []string
}

// NewNamespaceSet builds a namespace set from dotted prefixes, e.g.
// "acme.telemetry". An empty prefix list owns nothing.
func NewNamespaceSet(prefixes ...string) *NamespaceSet {
	owned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p != "" {
			owned = append(owned, strings.TrimSuffix(p, "."))
		}
	}
	return &NamespaceSet{prefixes: owned}
}

// Owns reports whether a dotted type name falls inside the set.
func (n *NamespaceSet) Owns(typeName string) bool {
	for _, prefix := range n.prefixes {
		if typeName == prefix || strings.HasPrefix(typeName, prefix+".") {
			return true
		}
	}
	return false
}

// Extractor turns injected-logic units into reference sets.
type Extractor struct {
	reader OperationReader
	logger Logger
}

// NewExtractor creates an extractor over the given operation reader.
func NewExtractor(reader OperationReader, logger any) *Extractor {
	return &Extractor{reader: reader, logger: NewLogger(logger)}
}

// Extract builds the reference set for one injected-logic unit.
//
// Traversal is breadth-first from the root unit, bounded to units the owned
// namespace set claims. Each externally-targeted operation emits one
// reference carrying its own source location; duplicates of the same symbol
// are retained per site. Required visibility is inferred as the minimum the
// call site can rely on: package when source and target share a package
// path, protected when the target is the source unit's declared supertype,
// public otherwise.
func (e *Extractor) Extract(rootUnit string, owned *NamespaceSet) (*ReferenceSet, error) {
	var refs []SymbolReference

	queue := []string{rootUnit}
	visited := map[string]bool{rootUnit: true}

	for len(queue) > 0 {
		unit := queue[0]
		queue = queue[1:]

		ops, err := e.reader.ReadOperations(unit)
		if err != nil {
			return nil, NewOperationReadError(unit, err)
		}

		for _, op := range ops {
			if op.TargetType == "" || op.TargetType == unit {
				continue
			}
			if owned.Owns(op.TargetType) {
				if !visited[op.TargetType] {
					visited[op.TargetType] = true
					queue = append(queue, op.TargetType)
				}
				continue
			}
			refs = append(refs, e.reference(unit, op))
		}
	}

	e.logger.Debug("Extracted reference set",
		"root_unit", rootUnit, "units_scanned", len(visited), "references", len(refs))
	return NewReferenceSet(refs), nil
}

// reference converts one external operation into a symbol reference.
func (e *Extractor) reference(sourceUnit string, op Operation) SymbolReference {
	ref := SymbolReference{
		TargetType:         op.TargetType,
		RequiredVisibility: e.requiredVisibility(sourceUnit, op.TargetType),
		SourceUnit:         sourceUnit,
		SourceLine:         op.Line,
	}
	switch op.Kind {
	case OpInvoke:
		ref.Kind = KindMethodCall
		ref.Signature = op.Member
	case OpFieldRead, OpFieldWrite:
		ref.Kind = KindFieldAccess
		ref.Signature = op.Member
	default:
		ref.Kind = KindTypeUse
	}
	return ref
}

// requiredVisibility infers the minimum access level the usage site can rely
// on against the target.
func (e *Extractor) requiredVisibility(sourceUnit, targetType string) Visibility {
	if packagePath(sourceUnit) == packagePath(targetType) {
		return VisibilityPackage
	}
	if sr, ok := e.reader.(SupertypeResolver); ok {
		if super, known := sr.Supertype(sourceUnit); known && super == targetType {
			return VisibilityProtected
		}
	}
	return VisibilityPublic
}
