// installer.go: module matching, verification gating, and hook installation
//
// The installer drives one (module, host-type) pairing through its states:
// Discovered, then Matched when a type predicate fires, then Verified when
// the reference verifier approves the owning context, then Installed once
// entry/exit hooks are wired. Any failure after Matched moves the pairing to
// Rejected, terminal for that context, with no partial installation and no
// effect on host behavior. A module may reach Installed independently in
// multiple distinct contexts; nothing is shared across contexts.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// InstallState is the lifecycle state of one (module, host-type) pairing
// within a context.
type InstallState int

const (
	// StateDiscovered means the module is registered but has not matched a
	// type in this context yet.
	StateDiscovered InstallState = iota
	// StateMatched means a type predicate fired for this context.
	StateMatched
	// StateVerified means the reference verifier approved this context.
	StateVerified
	// StateInstalled means hooks are wired. Terminal for this pairing.
	StateInstalled
	// StateRejected means matching, verification, or wiring failed. The
	// module stays inert for this context. Terminal.
	StateRejected
)

// String implements fmt.Stringer.
func (s InstallState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateMatched:
		return "matched"
	case StateVerified:
		return "verified"
	case StateInstalled:
		return "installed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Invocation carries one execution of a matched operation through its entry
// and exit hooks. The capability creates one Invocation per call; the
// exactly-once exit guarantee hangs off the invocation's own guard, so even
// a capability that signals exit twice cannot run advice twice.
type Invocation struct {
	Target   string
	Member   MemberSignature
	Args     []any
	Started  time.Time
	exitDone atomic.Bool
}

// NewInvocation creates an invocation record for one call of a matched
// operation. Instrumentation capabilities call this at operation entry.
func NewInvocation(target string, member MemberSignature, args []any) *Invocation {
	return &Invocation{
		Target:  target,
		Member:  member,
		Args:    args,
		Started: timecache.CachedTime(),
	}
}

// Instrumentation is the capability handle supplied by the embedder: the
// collaborator that can actually rewrite matched operations so hooks run at
// entry and exit.
//
// Contract: entry and exit hooks run at most once per invocation of the
// matched operation; the exit hook runs exactly once whether the original
// body completed normally or raised an error; installation must be inert on
// failure, leaving the original operation untouched.
type Instrumentation interface {
	// Supports reports whether the capability can rewrite operations of the
	// given type at all, before any matching or verification is attempted.
	Supports(desc *TypeDescriptor) bool

	// Install wires the hooks onto the named operation of the target type.
	Install(target string, operation MemberSignature, entry EntryHook, exit ExitHook) error
}

// stateKey identifies one module within one context. Rejection is tracked at
// this granularity: once a module fails anywhere in a context it stays inert
// for every type of that context.
type stateKey struct {
	module    string
	contextID uint64
}

// pairKey identifies one (module, host-type) pairing within a context. The
// state machine advances per pairing, so a module whose bindings match
// several types instruments each of them independently.
type pairKey struct {
	module    string
	contextID uint64
	target    string
}

// Installer matches host types against registered modules, gates every
// installation behind reference verification, and wires hooks through the
// instrumentation capability.
type Installer struct {
	bridge     *Bridge
	capability Instrumentation
	extractor  *Extractor
	resolver   TypeResolver
	toggles    *ToggleWatcher
	modules    []ExtensionModule
	logger     Logger
	metrics    MetricsCollector

	mu        sync.Mutex
	states    map[pairKey]InstallState
	rejected  map[stateKey]bool
	refSets   map[string]*ReferenceSet // module name -> extracted set
	verifiers map[string]*Verifier     // module name -> verifier with per-context cache
}

// InstallerOption customizes an installer.
type InstallerOption func(*Installer)

// WithInstallerLogger sets the installer's logger.
func WithInstallerLogger(logger any) InstallerOption {
	return func(i *Installer) { i.logger = NewLogger(logger) }
}

// WithInstallerMetrics sets the metrics collector.
func WithInstallerMetrics(collector MetricsCollector) InstallerOption {
	return func(i *Installer) { i.metrics = collector }
}

// WithToggleWatcher gates matching behind hot-reloadable module toggles.
func WithToggleWatcher(toggles *ToggleWatcher) InstallerOption {
	return func(i *Installer) { i.toggles = toggles }
}

// WithModules overrides the module list; by default the installer serves
// every module in the registry at construction time.
func WithModules(modules ...ExtensionModule) InstallerOption {
	return func(i *Installer) { i.modules = modules }
}

// WithInstallerResolver overrides the type resolver handed to verifiers.
func WithInstallerResolver(resolver TypeResolver) InstallerOption {
	return func(i *Installer) { i.resolver = resolver }
}

// NewInstaller creates an installer over the given bridge, instrumentation
// capability, and operation reader.
func NewInstaller(bridge *Bridge, capability Instrumentation, reader OperationReader, opts ...InstallerOption) (*Installer, error) {
	if capability == nil {
		return nil, NewNoCapabilityError()
	}
	inst := &Installer{
		bridge:     bridge,
		capability: capability,
		resolver:   contextTypeResolver{},
		modules:    Modules(),
		logger:     DefaultLogger(),
		metrics:    NewNoOpMetricsCollector(),
		states:     make(map[pairKey]InstallState),
		rejected:   make(map[stateKey]bool),
		refSets:    make(map[string]*ReferenceSet),
		verifiers:  make(map[string]*Verifier),
	}
	for _, opt := range opts {
		opt(inst)
	}
	inst.extractor = NewExtractor(reader, inst.logger)
	return inst, nil
}

// StateFor returns the installation state of a module for a context: Rejected
// once any pairing failed there, otherwise the most advanced state any of the
// module's pairings reached in that context.
func (i *Installer) StateFor(moduleName string, ctx LoadingContext) InstallState {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rejected[stateKey{module: moduleName, contextID: ctx.ID()}] {
		return StateRejected
	}
	state := StateDiscovered
	for key, s := range i.states {
		if key.module == moduleName && key.contextID == ctx.ID() && s > state {
			state = s
		}
	}
	return state
}

// StateForType returns the state of one (module, host-type) pairing.
func (i *Installer) StateForType(moduleName string, ctx LoadingContext, target string) InstallState {
	i.mu.Lock()
	defer i.mu.Unlock()
	if s, ok := i.states[pairKey{module: moduleName, contextID: ctx.ID(), target: target}]; ok {
		return s
	}
	if i.rejected[stateKey{module: moduleName, contextID: ctx.ID()}] {
		return StateRejected
	}
	return StateDiscovered
}

// Install evaluates every served module against a host type about to be
// activated in hostCtx.
//
// Install never returns an error for verification mismatches or hook-wiring
// failures: those reject the module for this context and the host continues
// unmodified. The returned error covers only misuse (nil descriptor).
func (i *Installer) Install(desc *TypeDescriptor, hostCtx LoadingContext) error {
	if desc == nil {
		return NewMalformedUnitError("", "nil type descriptor")
	}
	if !i.capability.Supports(desc) {
		return nil
	}

	for _, module := range i.modules {
		if i.toggles != nil && !i.toggles.ModuleEnabled(module.Name()) {
			continue
		}
		i.installModule(module, desc, hostCtx)
	}
	return nil
}

// installModule drives one (module, host-type) pairing through the state
// machine.
func (i *Installer) installModule(module ExtensionModule, desc *TypeDescriptor, hostCtx LoadingContext) {
	if gate, ok := module.(ModuleGate); ok && !gate.Matches(desc) {
		return
	}

	matched := make([]Binding, 0, 1)
	for _, binding := range module.Bindings() {
		if binding.Matcher != nil && binding.Matcher.Matches(desc) {
			matched = append(matched, binding)
		}
	}
	if len(matched) == 0 {
		return
	}

	ctxKey := stateKey{module: module.Name(), contextID: hostCtx.ID()}
	pair := pairKey{module: module.Name(), contextID: hostCtx.ID(), target: desc.Name}

	// Claim the pairing under the lock: exactly one caller moves it out of
	// Discovered. Concurrent offers of the same type bail here, so a binding
	// can never be wired twice onto one operation.
	i.mu.Lock()
	if i.rejected[ctxKey] || i.states[pair] != StateDiscovered {
		i.mu.Unlock()
		return
	}
	i.states[pair] = StateMatched
	i.mu.Unlock()

	// Helper deployability failures are equivalent to a verification-stage
	// rejection: the module stays inert for this context.
	if err := i.deployHelpers(module, hostCtx); err != nil {
		i.reject(ctxKey, pair, module, hostCtx, "helper deployment failed", err)
		return
	}

	verifier, err := i.verifierFor(module)
	if err != nil {
		i.reject(ctxKey, pair, module, hostCtx, "reference extraction failed", err)
		return
	}
	verdict := verifier.Verify(hostCtx)
	if !verdict.Passed {
		i.logger.Info("Module rejected by reference verification",
			"module", module.Name(), "context", hostCtx.Name(), "mismatches", verdict.Mismatches)
		i.reject(ctxKey, pair, module, hostCtx, "verification mismatches", nil)
		return
	}
	i.setState(pair, StateVerified)

	for _, binding := range matched {
		entry, exit := i.wrapHooks(module.Name(), binding)
		if err := i.capability.Install(desc.Name, binding.Operation, entry, exit); err != nil {
			// Fail-safe at the host boundary: wiring errors are logged and
			// the module is treated as rejected; the original behavior of
			// the host stays intact.
			i.logger.Error("Hook wiring failed after verification passed",
				"module", module.Name(), "target", desc.Name, "operation", binding.Operation.String(), "error", err)
			i.reject(ctxKey, pair, module, hostCtx, "hook wiring failed", NewHookWiringError(desc.Name, err))
			return
		}
	}

	i.setState(pair, StateInstalled)
	i.metrics.IncrementCounter("goweave_modules_installed_total",
		map[string]string{"module": module.Name(), "context": hostCtx.Name()}, 1)
	i.logger.Info("Module installed",
		"module", module.Name(), "target", desc.Name, "context", hostCtx.Name())
}

// reject marks a terminal rejection: the pairing that failed plus the whole
// (module, context) combination, so later types of this context stay inert.
func (i *Installer) reject(ctxKey stateKey, pair pairKey, module ExtensionModule, hostCtx LoadingContext, reason string, err error) {
	i.mu.Lock()
	i.states[pair] = StateRejected
	i.rejected[ctxKey] = true
	i.mu.Unlock()
	i.metrics.IncrementCounter("goweave_modules_rejected_total",
		map[string]string{"module": module.Name(), "context": hostCtx.Name()}, 1)
	if err != nil {
		i.logger.Warn("Module rejected", "module", module.Name(), "context", hostCtx.Name(),
			"reason", reason, "error", err)
	}
}

func (i *Installer) setState(key pairKey, state InstallState) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.states[key] = state
}

// verifierFor lazily extracts the module's reference set and builds its
// verifier. The verifier is shared across contexts; its verdict cache is
// keyed per context identity, so independent contexts never bleed verdicts.
func (i *Installer) verifierFor(module ExtensionModule) (*Verifier, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if v, ok := i.verifiers[module.Name()]; ok {
		return v, nil
	}

	if module.Namespace() == "" {
		return nil, NewEmptyNamespaceError(module.Name())
	}
	owned := NewNamespaceSet(module.Namespace())

	var refs []SymbolReference
	for _, binding := range module.Bindings() {
		set, err := i.extractor.Extract(binding.AdviceUnit, owned)
		if err != nil {
			return nil, NewExtractionError(binding.AdviceUnit, err)
		}
		refs = append(refs, set.References()...)
	}
	set := NewReferenceSet(refs)
	i.refSets[module.Name()] = set

	v := NewVerifier(set,
		WithTypeResolver(i.resolver),
		WithVerifierLogger(i.logger),
		WithVerifierMetrics(i.metrics))
	i.verifiers[module.Name()] = v
	return v, nil
}

// ReferenceSetFor returns the extracted reference set of a module, building
// it on first use. The harness reuses this to verify the same sets it would
// verify at runtime.
func (i *Installer) ReferenceSetFor(module ExtensionModule) (*ReferenceSet, error) {
	if _, err := i.verifierFor(module); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.refSets[module.Name()], nil
}

// deployHelpers sources each declared helper unit and defines it against the
// host context, resolving its members as a definition smoke test.
func (i *Installer) deployHelpers(module ExtensionModule, hostCtx LoadingContext) error {
	helpers := module.HelperUnits()
	if len(helpers) == 0 {
		return nil
	}

	definer, writable := hostCtx.(UnitDefiner)
	if !writable {
		return NewContextNotWritableError(hostCtx.Name())
	}

	for _, helper := range helpers {
		unit, err := i.sourceHelper(helper, hostCtx)
		if err != nil {
			return NewHelperDeployError(helper.Name, err)
		}
		if err := definer.DefineUnit(unit); err != nil {
			return NewHelperDeployError(helper.Name, err)
		}
		if unit.Descriptor == nil {
			return NewHelperDeployError(helper.Name, NewMalformedUnitError(helper.Name, "helper has no resolvable members"))
		}
	}

	i.metrics.IncrementCounter("goweave_helpers_deployed_total",
		map[string]string{"module": module.Name(), "context": hostCtx.Name()}, int64(len(helpers)))
	return nil
}

// sourceHelper loads the helper's compiled form honoring the per-helper
// resolution order.
func (i *Installer) sourceHelper(helper HelperUnit, hostCtx LoadingContext) (*CompiledUnit, error) {
	isolated, hasIsolated := i.bridge.Context()

	first, second := hostCtx, LoadingContext(nil)
	if hasIsolated {
		if helper.PreferIsolated {
			first, second = isolated, hostCtx
		} else {
			second = isolated
		}
	}

	unit, err := first.LoadUnit(helper.Name)
	if err == nil {
		return unit, nil
	}
	if !IsNotFound(err) || second == nil {
		return nil, err
	}
	return second.LoadUnit(helper.Name)
}

// wrapHooks hardens a binding's hooks: panics in advice are contained, and
// the exit hook observes each invocation at most once even if the capability
// signals exit more than once.
func (i *Installer) wrapHooks(moduleName string, binding Binding) (EntryHook, ExitHook) {
	entry := func(inv *Invocation) {
		if binding.Entry == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("Entry advice panicked; host unaffected",
					"module", moduleName, "target", inv.Target, "panic", r)
			}
		}()
		binding.Entry(inv)
	}

	exit := func(inv *Invocation, result any, err error) {
		if !inv.exitDone.CompareAndSwap(false, true) {
			return
		}
		if binding.Exit == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("Exit advice panicked; host unaffected",
					"module", moduleName, "target", inv.Target, "panic", r)
			}
		}()
		binding.Exit(inv, result, err)
	}

	return entry, exit
}
