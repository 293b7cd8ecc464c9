// testing_helpers_test.go: shared fixtures for the go-weave test suite
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"sync"
	"sync/atomic"
	"testing"
)

// mapOperationReader serves operation streams from an in-memory table. Units
// with no entry read as empty streams, matching a unit with no external
// touches.
type mapOperationReader struct {
	ops    map[string][]Operation
	supers map[string]string
	err    error
}

func newMapOperationReader() *mapOperationReader {
	return &mapOperationReader{
		ops:    make(map[string][]Operation),
		supers: make(map[string]string),
	}
}

func (r *mapOperationReader) ReadOperations(unitName string) ([]Operation, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.ops[unitName], nil
}

// Supertype implements SupertypeResolver.
func (r *mapOperationReader) Supertype(unitName string) (string, bool) {
	super, ok := r.supers[unitName]
	return super, ok
}

// installedHook records one wired operation on a mock capability.
type installedHook struct {
	target    string
	operation MemberSignature
	entry     EntryHook
	exit      ExitHook
}

// mockInstrumentation is a capability that records installations instead of
// rewriting anything.
type mockInstrumentation struct {
	mu         sync.Mutex
	installed  []installedHook
	installErr error
	supports   func(*TypeDescriptor) bool
}

func newMockInstrumentation() *mockInstrumentation {
	return &mockInstrumentation{}
}

func (m *mockInstrumentation) Supports(desc *TypeDescriptor) bool {
	if m.supports != nil {
		return m.supports(desc)
	}
	return true
}

func (m *mockInstrumentation) Install(target string, operation MemberSignature, entry EntryHook, exit ExitHook) error {
	if m.installErr != nil {
		return m.installErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installed = append(m.installed, installedHook{
		target:    target,
		operation: operation,
		entry:     entry,
		exit:      exit,
	})
	return nil
}

func (m *mockInstrumentation) installCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.installed)
}

func (m *mockInstrumentation) lastInstalled(t *testing.T) installedHook {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.installed) == 0 {
		t.Fatal("expected at least one installed hook")
	}
	return m.installed[len(m.installed)-1]
}

// countingResolver wraps the default resolver and counts resolutions, which
// is how tests prove verdict caching skips re-resolution.
type countingResolver struct {
	inner TypeResolver
	calls atomic.Int64
}

func newCountingResolver() *countingResolver {
	return &countingResolver{inner: contextTypeResolver{}}
}

func (r *countingResolver) ResolveType(name string, ctx LoadingContext) (*TypeDescriptor, error) {
	r.calls.Add(1)
	return r.inner.ResolveType(name, ctx)
}

// publicMethod builds a public method descriptor.
func publicMethod(name string, params []string, returns string) MethodDescriptor {
	return MethodDescriptor{Name: name, Params: params, Returns: returns, Visibility: VisibilityPublic}
}

// publicType builds a public type descriptor with the given methods.
func publicType(name string, methods ...MethodDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Name: name, Visibility: VisibilityPublic, Methods: methods}
}

// newListPlatform builds a platform context exposing a minimal standard
// collection surface, the fixture most verification tests resolve against.
func newListPlatform() *PlatformContext {
	return NewPlatformContext("platform", []*TypeDescriptor{
		publicType("java.lang.Object",
			publicMethod("toString", nil, "java.lang.String"),
			publicMethod("hashCode", nil, "int")),
		publicType("java.lang.String",
			publicMethod("length", nil, "int")),
		{
			Name:       "java.util.ArrayList",
			Super:      "java.util.AbstractList",
			Visibility: VisibilityPublic,
			Methods: []MethodDescriptor{
				publicMethod("<init>", nil, "void"),
				publicMethod("add", []string{"java.lang.Object"}, "boolean"),
				publicMethod("get", []string{"int"}, "java.lang.Object"),
			},
		},
		{
			Name:       "java.util.AbstractList",
			Super:      "java.lang.Object",
			Visibility: VisibilityPublic,
			Methods: []MethodDescriptor{
				publicMethod("size", nil, "int"),
			},
		},
	})
}

// typeUseRef builds a public type-use reference from a fixed site.
func typeUseRef(target string) SymbolReference {
	return SymbolReference{
		TargetType:         target,
		Kind:               KindTypeUse,
		RequiredVisibility: VisibilityPublic,
		SourceUnit:         "acme.telemetry.ListAdvice",
		SourceLine:         12,
	}
}

// methodRef builds a public method-call reference from a fixed site.
func methodRef(target, method string, params ...string) SymbolReference {
	return SymbolReference{
		TargetType:         target,
		Kind:               KindMethodCall,
		Signature:          MemberSignature{Name: method, Params: params},
		RequiredVisibility: VisibilityPublic,
		SourceUnit:         "acme.telemetry.ListAdvice",
		SourceLine:         20,
	}
}
