// module.go: extension module contract and service registration
//
// An extension module bundles everything one cross-cutting behavior needs:
// type matchers selecting host types, injected-logic bindings wired at entry
// and exit of matched operations, and helper units that must be deployable
// into the host context. Modules register themselves through a declarative
// registry, typically from an init function, so the runtime can enumerate
// them without the host naming them explicitly.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"sort"
	"strings"
	"sync"
)

// TypeMatcher is a predicate over type descriptors deciding whether a
// binding applies to a host type about to be activated.
type TypeMatcher interface {
	Matches(desc *TypeDescriptor) bool
}

// namedMatcher matches a type by exact dotted name.
type namedMatcher struct{ name string }

func (m namedMatcher) Matches(desc *TypeDescriptor) bool { return desc.Name == m.name }
func (m namedMatcher) String() string                    { return "named(" + m.name + ")" }

// prefixMatcher matches every type under a dotted namespace prefix.
type prefixMatcher struct{ prefix string }

func (m prefixMatcher) Matches(desc *TypeDescriptor) bool {
	return desc.Name == m.prefix || strings.HasPrefix(desc.Name, m.prefix+".")
}
func (m prefixMatcher) String() string { return "prefix(" + m.prefix + ")" }

// funcMatcher adapts an arbitrary predicate.
type funcMatcher struct {
	fn   func(*TypeDescriptor) bool
	desc string
}

func (m funcMatcher) Matches(desc *TypeDescriptor) bool { return m.fn(desc) }
func (m funcMatcher) String() string                    { return m.desc }

// MatchNamed matches a type by exact dotted name.
func MatchNamed(name string) TypeMatcher { return namedMatcher{name: name} }

// MatchPrefix matches every type under a dotted namespace prefix.
func MatchPrefix(prefix string) TypeMatcher { return prefixMatcher{prefix: prefix} }

// MatchFunc wraps a predicate function; desc names it in diagnostics.
func MatchFunc(desc string, fn func(*TypeDescriptor) bool) TypeMatcher {
	return funcMatcher{fn: fn, desc: desc}
}

// MatchSubtypeOf matches types whose direct supertype has the given name.
func MatchSubtypeOf(superName string) TypeMatcher {
	return funcMatcher{
		fn:   func(d *TypeDescriptor) bool { return d.Super == superName },
		desc: "subtypeOf(" + superName + ")",
	}
}

// EntryHook runs before the original body of a matched operation.
type EntryHook func(inv *Invocation)

// ExitHook runs after the original body, on both the normal and the error
// path. The library guarantees it observes each invocation at most once.
type ExitHook func(inv *Invocation, result any, err error)

// Binding pairs a type matcher with one injected-logic unit and the hooks
// that realize it at runtime. AdviceUnit names the compiled unit whose
// operation stream is statically analyzed for the module's reference set.
type Binding struct {
	Matcher    TypeMatcher
	Operation  MemberSignature
	AdviceUnit string
	Entry      EntryHook
	Exit       ExitHook
}

// HelperUnit names a unit that must be deployable into the host context
// before the module's advice can run there.
//
// PreferIsolated selects the resolution order when sourcing the helper's
// compiled form: true loads from the isolated context before falling back to
// the target context's own chain, false reverses the order. The flag exists
// because optional-dependency helpers may legitimately live on either side;
// deployability is configured per helper rather than hard-coding one order.
type HelperUnit struct {
	Name           string
	PreferIsolated bool
}

// ExtensionModule is the contract every registered extension implements.
// Instances are created at registration time and treated as immutable.
type ExtensionModule interface {
	// Name uniquely identifies the module in the registry.
	Name() string

	// Namespace returns the dotted prefix owning the module's own units;
	// it bounds transitive reference extraction.
	Namespace() string

	// Bindings returns the module's (matcher, injected-logic) pairs.
	Bindings() []Binding

	// HelperUnits returns the units that must be deployable into the host
	// context before installation.
	HelperUnits() []HelperUnit
}

// ModuleGate is an optional ExtensionModule refinement: a module-level type
// predicate evaluated before any per-binding matchers run. A module that does
// not implement it is gated by its bindings alone.
type ModuleGate interface {
	Matches(desc *TypeDescriptor) bool
}

// moduleRegistry is the process-wide declarative registration table.
var moduleRegistry = struct {
	mu      sync.RWMutex
	modules map[string]ExtensionModule
}{modules: make(map[string]ExtensionModule)}

// Register adds an extension module to the registry. It is typically called
// from an init function of the extension's package. Registering a nil
// module or a duplicate name fails.
func Register(module ExtensionModule) error {
	if module == nil || module.Name() == "" {
		name := ""
		if module != nil {
			name = module.Name()
		}
		return NewInvalidModuleNameError(name)
	}
	moduleRegistry.mu.Lock()
	defer moduleRegistry.mu.Unlock()
	if _, exists := moduleRegistry.modules[module.Name()]; exists {
		return NewDuplicateModuleError(module.Name())
	}
	moduleRegistry.modules[module.Name()] = module
	return nil
}

// Modules returns all registered extension modules sorted by name.
func Modules() []ExtensionModule {
	moduleRegistry.mu.RLock()
	defer moduleRegistry.mu.RUnlock()
	out := make([]ExtensionModule, 0, len(moduleRegistry.modules))
	for _, m := range moduleRegistry.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// resetModuleRegistry clears the registry. Test use only.
func resetModuleRegistry() {
	moduleRegistry.mu.Lock()
	defer moduleRegistry.mu.Unlock()
	moduleRegistry.modules = make(map[string]ExtensionModule)
}

// StaticModule is a ready-made ExtensionModule for extensions that can
// declare everything up front.
type StaticModule struct {
	ModuleName      string
	ModuleNamespace string
	ModuleMatcher   TypeMatcher
	ModuleBindings  []Binding
	Helpers         []HelperUnit
}

// Name implements ExtensionModule.
func (m *StaticModule) Name() string { return m.ModuleName }

// Namespace implements ExtensionModule.
func (m *StaticModule) Namespace() string { return m.ModuleNamespace }

// Bindings implements ExtensionModule.
func (m *StaticModule) Bindings() []Binding { return m.ModuleBindings }

// HelperUnits implements ExtensionModule.
func (m *StaticModule) HelperUnits() []HelperUnit { return m.Helpers }

// Matches implements ModuleGate; a nil ModuleMatcher gates nothing.
func (m *StaticModule) Matches(desc *TypeDescriptor) bool {
	return m.ModuleMatcher == nil || m.ModuleMatcher.Matches(desc)
}
